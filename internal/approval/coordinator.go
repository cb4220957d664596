package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/nonscan/internal/link"
	"github.com/danmuck/nonscan/internal/observability"
	"github.com/danmuck/nonscan/internal/protocol/ackwire"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidSubject    = errors.New("approval: invalid subject")
	ErrAlreadyPending    = errors.New("approval: request already pending")
	ErrNotConnected      = errors.New("approval: link not connected")
	ErrLinkLost          = errors.New("approval: link lost")
	ErrApprovalTimeout   = errors.New("approval: timed out waiting for ack")
	ErrCoordinatorClosed = errors.New("approval: coordinator closed")
)

// Link is the part of *link.Link the coordinator drives.
type Link interface {
	State() link.State
	StartListener(sink link.Sink) (bool, error)
	Send(ctx context.Context, payload []byte) error
}

type Config struct {
	// ApprovalTimeout of zero waits for an ack or link loss indefinitely.
	ApprovalTimeout time.Duration
	// RequestPrefix is prepended to the subject id to form the wire command.
	RequestPrefix string
	EventBuffer   int
}

// PendingInfo describes the outstanding request.
type PendingInfo struct {
	RequestID string    `json:"request_id"`
	SubjectID string    `json:"subject_id"`
	IssuedAt  time.Time `json:"issued_at"`
}

type Coordinator struct {
	link   Link
	cfg    Config
	events *broker
	now    func() time.Time

	mu      sync.Mutex
	pending *Request
	closed  bool
}

var _ link.Sink = (*Coordinator)(nil)

func New(l Link, cfg Config) *Coordinator {
	return &Coordinator{
		link:   l,
		cfg:    cfg,
		events: newBroker(cfg.EventBuffer),
		now:    time.Now,
	}
}

// RequestApproval sends one approval request and returns immediately. The
// returned Request resolves from the listener goroutine.
func (c *Coordinator) RequestApproval(ctx context.Context, subjectID string) (*Request, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, fmt.Errorf("%w: empty subject id", ErrInvalidSubject)
	}
	payload, err := ackwire.EncodeRequest(c.cfg.RequestPrefix + subjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSubject, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrCoordinatorClosed
	}
	if p := c.pending; p != nil {
		c.mu.Unlock()
		log.Warn().Str("subject", subjectID).Str("pending_subject", p.SubjectID).Msg("approval.RequestApproval rejected")
		c.events.publish(Event{Kind: EventAlreadyPending, RequestID: p.ID, SubjectID: subjectID, At: c.now()})
		return nil, fmt.Errorf("%w: subject=%q request_id=%s", ErrAlreadyPending, p.SubjectID, p.ID)
	}
	if state := c.link.State(); state != link.StateConnected {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: state=%s", ErrNotConnected, state)
	}
	req := newRequest(uuid.NewString(), subjectID, c.now())
	c.pending = req
	c.mu.Unlock()

	if _, err := c.link.StartListener(c); err != nil {
		c.abandon(req)
		return nil, fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	c.mu.Lock()
	if c.pending != req {
		// The link dropped before the listener took over; req was discarded.
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: before send", ErrLinkLost)
	}
	req.staged = false
	c.mu.Unlock()
	if err := c.link.Send(ctx, payload); err != nil {
		// A transport failure already resolved req through OnLinkLost.
		if !c.resolve(req, OutcomeLinkLost, fmt.Errorf("%w: %w", ErrLinkLost, err)) {
			c.abandon(req)
		}
		return nil, fmt.Errorf("%w: %w", ErrLinkLost, err)
	}

	if c.cfg.ApprovalTimeout > 0 {
		c.mu.Lock()
		if c.pending == req {
			req.timer = time.AfterFunc(c.cfg.ApprovalTimeout, func() {
				c.resolve(req, OutcomeTimedOut, ErrApprovalTimeout)
			})
		}
		c.mu.Unlock()
	}
	log.Info().Str("request_id", req.ID).Str("subject", subjectID).Msg("approval.RequestApproval sent")
	return req, nil
}

// Pending returns the outstanding request, if any.
func (c *Coordinator) Pending() (PendingInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return PendingInfo{}, false
	}
	return PendingInfo{
		RequestID: c.pending.ID,
		SubjectID: c.pending.SubjectID,
		IssuedAt:  c.pending.IssuedAt,
	}, true
}

// Subscribe registers an event channel. The returned func unsubscribes.
func (c *Coordinator) Subscribe() (<-chan Event, func()) {
	return c.events.subscribe()
}

// LastEvent returns the most recently published event.
func (c *Coordinator) LastEvent() (Event, bool) {
	return c.events.lastEvent()
}

// OnAck resolves the pending request as approved.
func (c *Coordinator) OnAck(at time.Time) {
	c.mu.Lock()
	req := c.pending
	if req != nil && req.staged {
		// Nothing has been sent for req yet, so this ack answers an earlier one.
		req = nil
	}
	c.mu.Unlock()
	if req == nil {
		log.Warn().Msg("approval.OnAck ack with no pending request")
		c.events.publish(Event{Kind: EventUnsolicitedAck, At: at})
		return
	}
	c.resolve(req, OutcomeApproved, nil)
}

// OnLinkLost fails the pending request, or reports the loss if none is pending.
// A request still waiting for its listener is dropped without an event of its
// own; RequestApproval reports that failure to its caller.
func (c *Coordinator) OnLinkLost(cause error) {
	c.mu.Lock()
	req := c.pending
	if req != nil && req.staged {
		c.pending = nil
		req = nil
	}
	c.mu.Unlock()
	if req == nil || !c.resolve(req, OutcomeLinkLost, fmt.Errorf("%w: %w", ErrLinkLost, cause)) {
		c.events.publish(Event{Kind: EventLinkLost, Error: errString(cause), At: c.now()})
	}
}

// Close fails any pending request and closes all subscriptions.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	req := c.pending
	c.mu.Unlock()
	if req != nil {
		c.resolve(req, OutcomeLinkLost, fmt.Errorf("%w: %w", ErrLinkLost, ErrCoordinatorClosed))
	}
	c.events.close()
}

// resolve finishes req if it is still the pending request.
func (c *Coordinator) resolve(req *Request, outcome Outcome, err error) bool {
	c.mu.Lock()
	if c.pending != req {
		c.mu.Unlock()
		return false
	}
	c.pending = nil
	if req.timer != nil {
		req.timer.Stop()
	}
	c.mu.Unlock()

	now := c.now()
	if !req.finish(Result{Outcome: outcome, Err: err, ResolvedAt: now}) {
		return false
	}
	observability.RecordApproval(outcome.String(), now.Sub(req.IssuedAt))

	ev := Event{RequestID: req.ID, SubjectID: req.SubjectID, Error: errString(err), At: now}
	switch outcome {
	case OutcomeApproved:
		ev.Kind = EventAckReceived
		log.Info().Str("request_id", req.ID).Str("subject", req.SubjectID).Msg("approval approved")
	case OutcomeTimedOut:
		ev.Kind = EventTimedOut
		log.Warn().Str("request_id", req.ID).Str("subject", req.SubjectID).Msg("approval timed out")
	default:
		ev.Kind = EventLinkLost
		log.Warn().Str("request_id", req.ID).Str("subject", req.SubjectID).Err(err).Msg("approval failed")
	}
	c.events.publish(ev)
	return true
}

// abandon drops req without publishing; used when it never reached the wire.
func (c *Coordinator) abandon(req *Request) {
	c.mu.Lock()
	if c.pending == req {
		c.pending = nil
	}
	c.mu.Unlock()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
