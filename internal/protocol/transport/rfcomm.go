package transport

import (
	"fmt"
	"time"
)

// RFCOMMDialer opens a Bluetooth serial stream to one paired module.
type RFCOMMDialer struct {
	Address        PeerAddress
	Channel        uint8
	ConnectTimeout time.Duration
}

func (d RFCOMMDialer) Peer() string {
	return fmt.Sprintf("rfcomm://%s/%d", d.Address, d.Channel)
}
