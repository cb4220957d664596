package approval

import (
	"context"
	"sync"
	"time"
)

// Outcome is how a request resolved.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeApproved
	OutcomeLinkLost
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeApproved:
		return "approved"
	case OutcomeLinkLost:
		return "link_lost"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Result is the terminal state of one request.
type Result struct {
	Outcome    Outcome
	Err        error
	ResolvedAt time.Time
}

// Request is a future for one approval. It resolves exactly once.
type Request struct {
	ID        string
	SubjectID string
	IssuedAt  time.Time

	once   sync.Once
	done   chan struct{}
	result Result
	timer  *time.Timer
	// staged is set until a listener is confirmed; guarded by Coordinator.mu.
	staged bool
}

func newRequest(id, subjectID string, now time.Time) *Request {
	return &Request{
		ID:        id,
		SubjectID: subjectID,
		IssuedAt:  now,
		done:      make(chan struct{}),
		staged:    true,
	}
}

func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Result returns the outcome once Done is closed.
func (r *Request) Result() (Result, bool) {
	select {
	case <-r.done:
		return r.result, true
	default:
		return Result{Outcome: OutcomePending}, false
	}
}

// Wait blocks until the request resolves or ctx ends. Abandoning the wait
// does not cancel the request.
func (r *Request) Wait(ctx context.Context) (Result, error) {
	select {
	case <-r.done:
		return r.result, r.result.Err
	case <-ctx.Done():
		return Result{Outcome: OutcomePending}, ctx.Err()
	}
}

func (r *Request) finish(res Result) bool {
	finished := false
	r.once.Do(func() {
		r.result = res
		close(r.done)
		finished = true
	})
	return finished
}
