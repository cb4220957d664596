package transport

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// PeerAddress is a Bluetooth device address in display order (00:25:00:00:13:9F).
type PeerAddress [6]byte

func ParsePeerAddress(raw string) (PeerAddress, error) {
	var out PeerAddress
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != len(out) {
		return PeerAddress{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	for i, part := range parts {
		if len(part) != 2 {
			return PeerAddress{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
		}
		b, err := hex.DecodeString(part)
		if err != nil {
			return PeerAddress{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
		}
		out[i] = b[0]
	}
	return out, nil
}

func (a PeerAddress) String() string {
	parts := make([]string, len(a))
	for i, b := range a {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

// bdaddr returns the little-endian byte order the kernel expects.
func (a PeerAddress) bdaddr() [6]uint8 {
	var out [6]uint8
	for i := range a {
		out[i] = a[len(a)-1-i]
	}
	return out
}
