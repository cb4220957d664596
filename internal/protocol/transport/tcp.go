package transport

import (
	"context"
	"net"
	"strings"
	"time"
)

// TCPDialer reaches the peripheral through a serial-over-TCP bridge.
type TCPDialer struct {
	Address        string
	ConnectTimeout time.Duration
}

func (d TCPDialer) Peer() string {
	return "tcp://" + strings.TrimSpace(d.Address)
}

func (d TCPDialer) Dial(ctx context.Context) (Conn, error) {
	addr := strings.TrimSpace(d.Address)
	if addr == "" {
		return nil, &ConnectFailure{Peer: d.Peer(), Err: ErrInvalidAddress}
	}
	dialer := net.Dialer{Timeout: d.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectFailure{Peer: d.Peer(), Err: err}
	}
	return newStreamConn(d.Peer(), conn), nil
}
