//go:build linux

package transport

import (
	"context"
	"os"

	"golang.org/x/sys/unix"
)

func (d RFCOMMDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ConnectFailure{Peer: d.Peer(), Err: err}
	}
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, &ConnectFailure{Peer: d.Peer(), Err: os.NewSyscallError("socket", err)}
	}
	// SO_SNDTIMEO bounds a blocking connect on Linux.
	if d.ConnectTimeout > 0 {
		tv := unix.NsecToTimeval(d.ConnectTimeout.Nanoseconds())
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv); err != nil {
			_ = unix.Close(fd)
			return nil, &ConnectFailure{Peer: d.Peer(), Err: os.NewSyscallError("setsockopt", err)}
		}
	}
	sa := &unix.SockaddrRFCOMM{Addr: d.Address.bdaddr(), Channel: d.Channel}
	if err := unix.Connect(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, &ConnectFailure{Peer: d.Peer(), Err: os.NewSyscallError("connect", err)}
	}
	if err := ctx.Err(); err != nil {
		_ = unix.Close(fd)
		return nil, &ConnectFailure{Peer: d.Peer(), Err: err}
	}

	// Clear the connect timeout and hand the fd to the runtime poller so
	// read/write deadlines apply.
	var zero unix.Timeval
	_ = unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &zero)
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, &ConnectFailure{Peer: d.Peer(), Err: os.NewSyscallError("setnonblock", err)}
	}
	f := os.NewFile(uintptr(fd), d.Peer())
	return newStreamConn(d.Peer(), f), nil
}
