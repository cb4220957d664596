// Package linktest provides in-memory transports for link and approval tests.
package linktest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/nonscan/internal/protocol/transport"
)

// Conn is a scripted peer. Chunks pushed with Emit are returned by Receive
// in order; Fail ends the stream with a receive failure.
type Conn struct {
	rx     chan []byte
	fail   chan error
	closed chan struct{}

	closeOnce  sync.Once
	closeCount atomic.Int32

	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	onSend  func(payload []byte)
}

func NewConn() *Conn {
	return &Conn{
		rx:     make(chan []byte, 64),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

// Emit queues bytes the peer "sends"; each call is one read.
func (c *Conn) Emit(chunk ...byte) {
	c.rx <- append([]byte(nil), chunk...)
}

// Fail makes the next Receive return a ReceiveFailure wrapping err.
func (c *Conn) Fail(err error) {
	c.fail <- err
}

// FailSends makes every later Send fail with err.
func (c *Conn) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// OnSend registers a hook run after each successful Send.
func (c *Conn) OnSend(fn func(payload []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSend = fn
}

func (c *Conn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Conn) CloseCount() int {
	return int(c.closeCount.Load())
}

func (c *Conn) Send(p []byte, timeout time.Duration) error {
	if c.Closed() {
		return &transport.SendFailure{Peer: "fake", Err: transport.ErrClosed}
	}
	c.mu.Lock()
	if c.sendErr != nil {
		err := c.sendErr
		c.mu.Unlock()
		return &transport.SendFailure{Peer: "fake", Err: err}
	}
	c.sent = append(c.sent, append([]byte(nil), p...))
	hook := c.onSend
	c.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return nil
}

func (c *Conn) Receive(p []byte, timeout time.Duration) (int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.closed:
		return 0, &transport.ReceiveFailure{Peer: "fake", Err: transport.ErrClosed}
	case err := <-c.fail:
		return 0, &transport.ReceiveFailure{Peer: "fake", Err: err}
	case chunk := <-c.rx:
		return copy(p, chunk), nil
	case <-timer.C:
		return 0, transport.ErrTimeout
	}
}

func (c *Conn) Close() error {
	c.closeCount.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Dialer hands out queued results in order. When the queue is empty it
// returns a fresh Conn.
type Dialer struct {
	mu      sync.Mutex
	results []dialResult
	conns   []*Conn
	dials   atomic.Int32
}

type dialResult struct {
	conn *Conn
	err  error
}

func NewDialer() *Dialer {
	return &Dialer{}
}

func (d *Dialer) QueueConn(c *Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, dialResult{conn: c})
}

func (d *Dialer) QueueError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, dialResult{err: err})
}

func (d *Dialer) Dials() int {
	return int(d.dials.Load())
}

// Last returns the most recently dialed Conn.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *Dialer) Peer() string {
	return "fake://panel"
}

func (d *Dialer) Dial(ctx context.Context) (transport.Conn, error) {
	d.dials.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, &transport.ConnectFailure{Peer: d.Peer(), Err: err}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	res := dialResult{conn: NewConn()}
	if len(d.results) > 0 {
		res = d.results[0]
		d.results = d.results[1:]
	}
	if res.err != nil {
		return nil, &transport.ConnectFailure{Peer: d.Peer(), Err: res.err}
	}
	d.conns = append(d.conns, res.conn)
	return res.conn, nil
}
