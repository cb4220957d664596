package panel

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/nonscan/internal/approval"
	"github.com/danmuck/nonscan/internal/link"
	"github.com/danmuck/nonscan/internal/protocol/transport"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

// Service runs the panel lifecycle as a standalone process.
type Service struct {
	cfg      ServiceConfig
	link     *link.Link
	coord    *approval.Coordinator
	router   *gin.Engine
	appeared time.Time
	addr     atomic.Value
}

func NewServiceWithConfig(cfg ServiceConfig) (*Service, error) {
	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialer, err := cfg.Dialer()
	if err != nil {
		return nil, err
	}
	return newService(cfg, dialer)
}

// NewServiceWithDialer builds a service around an explicit transport. The
// peer fields of cfg are ignored.
func NewServiceWithDialer(cfg ServiceConfig, dialer transport.Dialer) (*Service, error) {
	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.validateRuntime(); err != nil {
		return nil, err
	}
	return newService(cfg, dialer)
}

func newService(cfg ServiceConfig, dialer transport.Dialer) (*Service, error) {
	l, err := link.New(dialer, cfg.Session)
	if err != nil {
		return nil, err
	}
	s := &Service{
		cfg:  cfg,
		link: l,
		coord: approval.New(l, approval.Config{
			ApprovalTimeout: cfg.Session.ApprovalTimeout,
			RequestPrefix:   cfg.RequestPrefix,
		}),
		appeared: time.Now(),
	}
	s.router = s.newRouter()
	return s, nil
}

func (s *Service) Link() *link.Link {
	return s.link
}

func (s *Service) Coordinator() *approval.Coordinator {
	return s.coord
}

// AdminAddr reports the bound admin address once Serve is listening.
func (s *Service) AdminAddr() string {
	v, _ := s.addr.Load().(string)
	return v
}

// Handler exposes the admin control surface.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Run blocks until SIGINT/SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve connects (when configured), serves the admin surface and tears
// everything down when ctx ends.
func (s *Service) Serve(ctx context.Context) error {
	defer s.shutdown()

	if s.cfg.ConnectOnBoot {
		if err := s.link.Connect(ctx); err != nil {
			// Reported, not retried: the operator reconnects through the admin surface.
			log.Warn().Str("peer", s.link.Peer()).Err(err).Msg("panel.Service.Serve boot connect failed")
		}
	}

	ln, err := net.Listen("tcp", s.cfg.AdminListenAddr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.addr.Store(ln.Addr().String())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()
	log.Info().
		Str("panel", s.cfg.PanelID).
		Str("admin_addr", ln.Addr().String()).
		Str("peer", s.link.Peer()).
		Str("state", s.link.State().String()).
		Msg("panel.Service.Serve ready")

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	// Closing subscriptions ends open event streams so Shutdown can drain.
	s.coord.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("panel.Service.Serve admin shutdown")
	}
	return nil
}

func (s *Service) shutdown() {
	s.coord.Close()
	if err := s.link.Close(); err != nil {
		log.Warn().Err(err).Msg("panel.Service.shutdown link close")
	}
}
