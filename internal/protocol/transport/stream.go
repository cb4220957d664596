package transport

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// deadlineStream is satisfied by net.Conn and by a pollable *os.File.
type deadlineStream interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

type streamConn struct {
	peer      string
	stream    deadlineStream
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newStreamConn(peer string, stream deadlineStream) *streamConn {
	return &streamConn{peer: peer, stream: stream}
}

func (c *streamConn) Send(p []byte, timeout time.Duration) error {
	if c.closed.Load() {
		return &SendFailure{Peer: c.peer, Err: ErrClosed}
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.stream.SetWriteDeadline(deadline); err != nil {
		return &SendFailure{Peer: c.peer, Err: err}
	}
	for len(p) > 0 {
		n, err := c.stream.Write(p)
		if err != nil {
			return &SendFailure{Peer: c.peer, Err: c.normalize(err)}
		}
		p = p[n:]
	}
	return nil
}

func (c *streamConn) Receive(p []byte, timeout time.Duration) (int, error) {
	if c.closed.Load() {
		return 0, &ReceiveFailure{Peer: c.peer, Err: ErrClosed}
	}
	if timeout <= 0 {
		timeout = DefaultReceiveTimeout
	}
	if err := c.stream.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, &ReceiveFailure{Peer: c.peer, Err: c.normalize(err)}
	}
	n, err := c.stream.Read(p)
	if n > 0 {
		// A trailing error resurfaces on the next read.
		return n, nil
	}
	if err == nil || isTimeout(err) {
		return 0, ErrTimeout
	}
	return 0, &ReceiveFailure{Peer: c.peer, Err: c.normalize(err)}
}

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.stream.Close()
	})
	return c.closeErr
}

func (c *streamConn) normalize(err error) error {
	if c.closed.Load() || errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return ErrClosed
	}
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
