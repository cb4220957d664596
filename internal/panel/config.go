package panel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/nonscan/internal/protocol/session"
	"github.com/danmuck/nonscan/internal/protocol/transport"
)

var (
	ErrPanelIDRequired   = errors.New("panel: panel_id required")
	ErrInvalidTransport  = errors.New("panel: invalid transport")
	ErrTCPAddrRequired   = errors.New("panel: tcp_address required for tcp transport")
	ErrInvalidPeerChan   = errors.New("panel: peer_channel must be 1-30")
	ErrAdminAddrRequired = errors.New("panel: admin_listen_addr required")
)

// TransportKind selects how the peripheral is reached.
type TransportKind string

const (
	TransportRFCOMM TransportKind = "rfcomm"
	TransportTCP    TransportKind = "tcp"
)

// ServiceConfig configures the panel runtime.
type ServiceConfig struct {
	PanelID         string
	Transport       TransportKind
	PeerAddress     string
	PeerChannel     uint8
	TCPAddress      string
	Session         session.Config
	RequestPrefix   string
	ConnectOnBoot   bool
	AdminListenAddr string
	CORSOrigins     []string
}

// DefaultServiceConfig targets the HC-05 module on RFCOMM channel 1.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		PanelID:         "panel.local",
		Transport:       TransportRFCOMM,
		PeerAddress:     "00:25:00:00:13:9F",
		PeerChannel:     1,
		Session:         session.DefaultConfig(),
		ConnectOnBoot:   true,
		AdminListenAddr: "127.0.0.1:7030",
		CORSOrigins:     []string{"http://localhost:3000"},
	}
}

func (c ServiceConfig) Validate() error {
	if err := c.validateRuntime(); err != nil {
		return err
	}
	switch c.Transport {
	case TransportRFCOMM:
		if _, err := transport.ParsePeerAddress(c.PeerAddress); err != nil {
			return err
		}
		if c.PeerChannel < 1 || c.PeerChannel > 30 {
			return fmt.Errorf("%w: got %d", ErrInvalidPeerChan, c.PeerChannel)
		}
	case TransportTCP:
		if strings.TrimSpace(c.TCPAddress) == "" {
			return ErrTCPAddrRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTransport, c.Transport)
	}
	return nil
}

// validateRuntime checks the fields that do not depend on the transport.
func (c ServiceConfig) validateRuntime() error {
	if strings.TrimSpace(c.PanelID) == "" {
		return ErrPanelIDRequired
	}
	if strings.TrimSpace(c.AdminListenAddr) == "" {
		return ErrAdminAddrRequired
	}
	return c.Session.Validate()
}

// Dialer builds the transport dialer for the configured peer.
func (c ServiceConfig) Dialer() (transport.Dialer, error) {
	switch c.Transport {
	case TransportRFCOMM:
		addr, err := transport.ParsePeerAddress(c.PeerAddress)
		if err != nil {
			return nil, err
		}
		return transport.RFCOMMDialer{
			Address:        addr,
			Channel:        c.PeerChannel,
			ConnectTimeout: c.Session.ConnectTimeout,
		}, nil
	case TransportTCP:
		return transport.TCPDialer{
			Address:        strings.TrimSpace(c.TCPAddress),
			ConnectTimeout: c.Session.ConnectTimeout,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidTransport, c.Transport)
	}
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		if v := strings.TrimSpace(origin); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
