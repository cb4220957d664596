package panel

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/danmuck/nonscan/internal/approval"
	"github.com/danmuck/nonscan/internal/link"
	"github.com/danmuck/nonscan/internal/observability"
	"github.com/danmuck/nonscan/internal/protocol/transport"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

type approvalBody struct {
	SubjectID string `json:"subject_id" binding:"required"`
}

func (s *Service) newRouter() *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(s.cfg.PanelID))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(s.cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"panel":   s.cfg.PanelID,
			"version": version,
		})
	})
	r.GET("/ready", func(c *gin.Context) {
		ready := s.link.State() == link.StateConnected
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   ready,
			"panel":   s.cfg.PanelID,
			"version": version,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/link", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.link.Snapshot())
	})
	r.POST("/link/connect", func(c *gin.Context) {
		s.respondLink(c, s.link.Connect(c.Request.Context()))
	})
	r.POST("/link/reconnect", func(c *gin.Context) {
		s.respondLink(c, s.link.Reconnect(c.Request.Context()))
	})
	r.POST("/link/close", func(c *gin.Context) {
		s.respondLink(c, s.link.Close())
	})

	r.POST("/approvals", s.handleRequestApproval)
	r.GET("/approvals/pending", func(c *gin.Context) {
		p, ok := s.coord.Pending()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no pending request"})
			return
		}
		c.JSON(http.StatusOK, p)
	})
	r.GET("/approvals/last", func(c *gin.Context) {
		ev, ok := s.coord.LastEvent()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no events"})
			return
		}
		c.JSON(http.StatusOK, ev)
	})
	r.GET("/events", s.handleEvents)
	return r
}

func (s *Service) respondLink(c *gin.Context, err error) {
	if err != nil {
		c.JSON(linkErrorStatus(err), gin.H{"error": err.Error(), "link": s.link.Snapshot()})
		return
	}
	c.JSON(http.StatusOK, s.link.Snapshot())
}

func (s *Service) handleRequestApproval(c *gin.Context) {
	var body approvalBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := s.coord.RequestApproval(c.Request.Context(), body.SubjectID)
	if err != nil {
		c.JSON(approvalErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, approval.PendingInfo{
		RequestID: req.ID,
		SubjectID: req.SubjectID,
		IssuedAt:  req.IssuedAt,
	})
}

// handleEvents streams coordinator events as server-sent events.
func (s *Service) handleEvents(c *gin.Context) {
	events, cancel := s.coord.Subscribe()
	defer cancel()
	// Headers go out before the first event so idle subscribers see the stream open.
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Kind), ev)
			return true
		}
	})
}

func linkErrorStatus(err error) int {
	switch {
	case errors.Is(err, link.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, transport.ErrConnect), errors.Is(err, link.ErrReconnectExhausted):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func approvalErrorStatus(err error) int {
	switch {
	case errors.Is(err, approval.ErrInvalidSubject):
		return http.StatusBadRequest
	case errors.Is(err, approval.ErrAlreadyPending):
		return http.StatusConflict
	case errors.Is(err, approval.ErrNotConnected), errors.Is(err, approval.ErrCoordinatorClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, approval.ErrLinkLost):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
