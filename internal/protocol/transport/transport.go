package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrConnect        = errors.New("transport: connect failed")
	ErrSend           = errors.New("transport: send failed")
	ErrReceive        = errors.New("transport: receive failed")
	ErrTimeout        = errors.New("transport: receive timeout")
	ErrClosed         = errors.New("transport: connection closed")
	ErrInvalidAddress = errors.New("transport: invalid peer address")
	ErrNotSupported   = errors.New("transport: not supported on this platform")
)

// DefaultReceiveTimeout bounds Receive when the caller passes a non-positive timeout.
const DefaultReceiveTimeout = time.Second

// Conn is one established byte stream to the peer.
//
// Receive returns ErrTimeout when nothing arrived before the timeout. That is
// not a failure and the connection stays usable.
type Conn interface {
	Send(p []byte, timeout time.Duration) error
	Receive(p []byte, timeout time.Duration) (int, error)
	Close() error
}

// Dialer opens connections to one fixed peer.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
	Peer() string
}

// ConnectFailure reports an unreachable, unpaired or powered-off peer.
type ConnectFailure struct {
	Peer string
	Err  error
}

func (e *ConnectFailure) Error() string {
	return fmt.Sprintf("transport: connect %s: %v", e.Peer, e.Err)
}

func (e *ConnectFailure) Unwrap() error { return e.Err }

func (e *ConnectFailure) Is(target error) bool { return target == ErrConnect }

// SendFailure reports a write on a broken or closed connection.
type SendFailure struct {
	Peer string
	Err  error
}

func (e *SendFailure) Error() string {
	return fmt.Sprintf("transport: send %s: %v", e.Peer, e.Err)
}

func (e *SendFailure) Unwrap() error { return e.Err }

func (e *SendFailure) Is(target error) bool { return target == ErrSend }

// ReceiveFailure reports a read error that ends the connection.
type ReceiveFailure struct {
	Peer string
	Err  error
}

func (e *ReceiveFailure) Error() string {
	return fmt.Sprintf("transport: receive %s: %v", e.Peer, e.Err)
}

func (e *ReceiveFailure) Unwrap() error { return e.Err }

func (e *ReceiveFailure) Is(target error) bool { return target == ErrReceive }
