//go:build !linux

package transport

import "context"

func (d RFCOMMDialer) Dial(ctx context.Context) (Conn, error) {
	return nil, &ConnectFailure{Peer: d.Peer(), Err: ErrNotSupported}
}
