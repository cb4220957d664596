package link

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/nonscan/internal/observability"
	"github.com/danmuck/nonscan/internal/protocol/session"
	"github.com/danmuck/nonscan/internal/protocol/transport"
	"github.com/rs/zerolog/log"
)

var (
	ErrDialerRequired     = errors.New("link: dialer required")
	ErrSinkRequired       = errors.New("link: sink required")
	ErrNotConnected       = errors.New("link: not connected")
	ErrBusy               = errors.New("link: transition in progress")
	ErrClosed             = errors.New("link: closed")
	ErrReconnectExhausted = errors.New("link: reconnect attempts exhausted")
)

// Sink receives receive-loop outcomes. Calls come from the listener goroutine
// or from the goroutine that tore the connection down, never under the Link lock.
type Sink interface {
	OnAck(at time.Time)
	OnLinkLost(cause error)
}

// Snapshot is a point-in-time view of the link.
type Snapshot struct {
	Peer           string    `json:"peer"`
	State          string    `json:"state"`
	Listener       string    `json:"listener"`
	Generation     uint64    `json:"generation"`
	ListenerStarts uint64    `json:"listener_starts"`
	ConnectedAt    time.Time `json:"connected_at,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
}

type Link struct {
	dialer transport.Dialer
	cfg    session.Config
	rng    *rand.Rand
	sleep  func(ctx context.Context, d time.Duration) error

	mu             sync.Mutex
	state          State
	conn           transport.Conn
	gen            uint64
	connectedAt    time.Time
	lastErr        error
	listener       ListenerState
	listenerGen    uint64
	listenerDone   chan struct{}
	sink           Sink
	listenerStarts atomic.Uint64
}

func New(dialer transport.Dialer, cfg session.Config) (*Link, error) {
	if dialer == nil {
		return nil, ErrDialerRequired
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Link{
		dialer: dialer,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepContext,
		state:  StateDisconnected,
	}, nil
}

func (l *Link) Peer() string {
	return l.dialer.Peer()
}

func (l *Link) Config() session.Config {
	return l.cfg
}

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) ListenerState() ListenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listener
}

// ListenerStarts counts receive loops spawned over the Link lifetime.
func (l *Link) ListenerStarts() uint64 {
	return l.listenerStarts.Load()
}

func (l *Link) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := Snapshot{
		Peer:           l.dialer.Peer(),
		State:          l.state.String(),
		Listener:       l.listener.String(),
		Generation:     l.gen,
		ListenerStarts: l.listenerStarts.Load(),
	}
	if l.state == StateConnected {
		out.ConnectedAt = l.connectedAt
	}
	if l.lastErr != nil {
		out.LastError = l.lastErr.Error()
	}
	return out
}

// Connect dials the peer. It is a no-op on a Connected link. Failures leave
// the link Disconnected and are returned as *transport.ConnectFailure.
func (l *Link) Connect(ctx context.Context) error {
	l.mu.Lock()
	switch l.state {
	case StateConnected:
		l.mu.Unlock()
		return nil
	case StateConnecting, StateClosing:
		state := l.state
		l.mu.Unlock()
		return fmt.Errorf("%w: state=%s", ErrBusy, state)
	}
	l.setStateLocked(StateConnecting)
	l.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, l.cfg.ConnectTimeout)
	conn, err := l.dialer.Dial(dialCtx)
	cancel()

	l.mu.Lock()
	if err != nil {
		l.lastErr = err
		l.setStateLocked(StateDisconnected)
		l.mu.Unlock()
		observability.RecordLinkConnect(false)
		log.Warn().Str("peer", l.dialer.Peer()).Err(err).Msg("link.Connect failed")
		return err
	}
	if l.state != StateConnecting {
		// Close ran while dialing.
		l.setStateLocked(StateDisconnected)
		l.mu.Unlock()
		_ = conn.Close()
		observability.RecordLinkConnect(false)
		return ErrClosed
	}
	l.conn = conn
	l.gen++
	l.connectedAt = time.Now()
	l.lastErr = nil
	gen := l.gen
	l.setStateLocked(StateConnected)
	l.mu.Unlock()

	observability.RecordLinkConnect(true)
	log.Info().Str("peer", l.dialer.Peer()).Uint64("gen", gen).Msg("link.Connect connected")
	return nil
}

// Send writes one payload. A write failure moves the link to Disconnected.
func (l *Link) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	if l.state != StateConnected || l.conn == nil {
		state := l.state
		l.mu.Unlock()
		return fmt.Errorf("%w: state=%s", ErrNotConnected, state)
	}
	conn, gen := l.conn, l.gen
	l.mu.Unlock()

	timeout := l.cfg.WriteTimeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			// A non-positive timeout would clear the write deadline.
			return context.DeadlineExceeded
		}
		if remaining < timeout {
			timeout = remaining
		}
	}
	if err := conn.Send(payload, timeout); err != nil {
		l.teardown(gen, err, false)
		return err
	}
	observability.RecordWireBytes("tx", len(payload))
	log.Debug().Str("peer", l.dialer.Peer()).Int("bytes", len(payload)).Msg("link.Send sent")
	return nil
}

// Close tears down the connection. Calling it on a Disconnected link, or
// twice in a row, has no effect.
func (l *Link) Close() error {
	l.mu.Lock()
	switch l.state {
	case StateDisconnected, StateClosing:
		l.mu.Unlock()
		return nil
	case StateConnecting:
		// Connect observes this and discards the new handle.
		l.setStateLocked(StateClosing)
		l.mu.Unlock()
		return nil
	}
	gen := l.gen
	l.mu.Unlock()
	return l.teardown(gen, ErrClosed, true)
}

// Reconnect closes any stale handle, waits the settle delay and connects,
// retrying per the reconnect policy.
func (l *Link) Reconnect(ctx context.Context) error {
	if err := l.Close(); err != nil {
		log.Warn().Err(err).Msg("link.Reconnect close stale handle")
	}
	policy := l.cfg.Reconnect
	var lastErr error
	attempt := 0
	for {
		attempt++
		if !policy.Allows(attempt) {
			break
		}
		if err := l.sleep(ctx, policy.Delay(attempt, l.rng)); err != nil {
			return err
		}
		err := l.Connect(ctx)
		if err == nil {
			log.Info().Str("peer", l.dialer.Peer()).Int("attempt", attempt).Msg("link.Reconnect reconnected")
			return nil
		}
		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Warn().Str("peer", l.dialer.Peer()).Int("attempt", attempt).Err(err).Msg("link.Reconnect attempt failed")
	}
	return fmt.Errorf("%w: attempts=%d: %w", ErrReconnectExhausted, attempt-1, lastErr)
}

// StartListener spawns the receive loop for the current connection unless
// one is already running, in which case the running loop is reused and
// started is false.
func (l *Link) StartListener(sink Sink) (started bool, err error) {
	if sink == nil {
		return false, ErrSinkRequired
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateConnected || l.conn == nil {
		return false, fmt.Errorf("%w: state=%s", ErrNotConnected, l.state)
	}
	l.sink = sink
	if l.listener == ListenerRunning && l.listenerGen == l.gen {
		log.Warn().Str("peer", l.dialer.Peer()).Msg("link.StartListener listener already running")
		return false, nil
	}
	done := make(chan struct{})
	l.listener = ListenerRunning
	l.listenerGen = l.gen
	l.listenerDone = done
	l.listenerStarts.Add(1)
	observability.RecordListenerStart()
	go l.receiveLoop(l.conn, l.gen, sink, done)
	log.Debug().Str("peer", l.dialer.Peer()).Uint64("gen", l.gen).Msg("link.StartListener listening")
	return true, nil
}

// ListenerDone returns a channel closed when the most recent receive loop exits.
func (l *Link) ListenerDone() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listenerDone == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return l.listenerDone
}

// teardown closes the handle of generation gen. Only the first caller for a
// generation transitions state and notifies the sink.
func (l *Link) teardown(gen uint64, cause error, closing bool) error {
	l.mu.Lock()
	if gen != l.gen || l.conn == nil {
		l.mu.Unlock()
		return nil
	}
	conn := l.conn
	l.conn = nil
	l.lastErr = cause
	l.setStateLocked(StateClosing)
	if l.listenerGen == gen && l.listener == ListenerRunning {
		l.listener = ListenerStopped
	}
	sink := l.sink
	l.mu.Unlock()

	err := conn.Close()

	l.mu.Lock()
	l.setStateLocked(StateDisconnected)
	l.mu.Unlock()

	if closing {
		log.Info().Str("peer", l.dialer.Peer()).Uint64("gen", gen).Msg("link.Close disconnected")
	} else {
		log.Warn().Str("peer", l.dialer.Peer()).Uint64("gen", gen).Err(cause).Msg("link lost")
	}
	if sink != nil {
		sink.OnLinkLost(cause)
	}
	return err
}

func (l *Link) setStateLocked(s State) {
	if l.state == s {
		return
	}
	l.state = s
	observability.RecordLinkState(s.String())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
