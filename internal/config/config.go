package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/nonscan/internal/panel"
	"github.com/pelletier/go-toml/v2"
)

// PanelConfig is the on-disk shape of a panel config file. Durations are
// Go duration strings ("1s", "250ms").
type PanelConfig struct {
	PanelID       string `toml:"panel_id"`
	Transport     string `toml:"transport"`
	PeerAddress   string `toml:"peer_address"`
	PeerChannel   int    `toml:"peer_channel"`
	TCPAddress    string `toml:"tcp_address,omitempty"`
	RequestPrefix string `toml:"request_prefix"`

	ConnectTimeout  string `toml:"connect_timeout"`
	ReadTimeout     string `toml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	ApprovalTimeout string `toml:"approval_timeout"`

	ReconnectSettleDelay       string  `toml:"reconnect_settle_delay"`
	ReconnectMaxAttempts       int     `toml:"reconnect_max_attempts"`
	ReconnectBackoffMultiplier float64 `toml:"reconnect_backoff_multiplier"`
	ReconnectBackoffMax        string  `toml:"reconnect_backoff_max"`

	ConnectOnBoot   bool     `toml:"connect_on_boot"`
	AdminListenAddr string   `toml:"admin_listen_addr"`
	CorsOrigins     []string `toml:"cors_origins"`
}

// DefaultPanelConfig mirrors panel.DefaultServiceConfig in file form.
func DefaultPanelConfig() PanelConfig {
	svc := panel.DefaultServiceConfig()
	s := svc.Session
	return PanelConfig{
		PanelID:                    svc.PanelID,
		Transport:                  string(svc.Transport),
		PeerAddress:                svc.PeerAddress,
		PeerChannel:                int(svc.PeerChannel),
		RequestPrefix:              svc.RequestPrefix,
		ConnectTimeout:             s.ConnectTimeout.String(),
		ReadTimeout:                s.ReadTimeout.String(),
		WriteTimeout:               s.WriteTimeout.String(),
		ApprovalTimeout:            s.ApprovalTimeout.String(),
		ReconnectSettleDelay:       s.Reconnect.SettleDelay.String(),
		ReconnectMaxAttempts:       s.Reconnect.MaxAttempts,
		ReconnectBackoffMultiplier: s.Reconnect.Backoff.Multiplier,
		ReconnectBackoffMax:        s.Reconnect.Backoff.MaxDelay.String(),
		ConnectOnBoot:              svc.ConnectOnBoot,
		AdminListenAddr:            svc.AdminListenAddr,
		CorsOrigins:                append([]string(nil), svc.CORSOrigins...),
	}
}

// LoadPanelConfig reads path over the defaults and validates the result.
func LoadPanelConfig(path string) (PanelConfig, error) {
	cfg := DefaultPanelConfig()
	if err := loadToml(path, &cfg); err != nil {
		return PanelConfig{}, err
	}
	if err := ValidatePanelConfig(cfg); err != nil {
		return PanelConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidatePanelConfig(cfg PanelConfig) error {
	if cfg.PeerChannel < 0 || cfg.PeerChannel > 255 {
		return fmt.Errorf("panel config peer_channel out of range: %d", cfg.PeerChannel)
	}
	svc, err := cfg.ServiceConfig()
	if err != nil {
		return err
	}
	if err := svc.Validate(); err != nil {
		return fmt.Errorf("panel config invalid: %w", err)
	}
	return nil
}

// ServiceConfig converts the file form into the runtime config.
func (c PanelConfig) ServiceConfig() (panel.ServiceConfig, error) {
	svc := panel.DefaultServiceConfig()
	svc.PanelID = strings.TrimSpace(c.PanelID)
	svc.Transport = panel.TransportKind(strings.ToLower(strings.TrimSpace(c.Transport)))
	svc.PeerAddress = strings.TrimSpace(c.PeerAddress)
	svc.PeerChannel = uint8(c.PeerChannel)
	svc.TCPAddress = strings.TrimSpace(c.TCPAddress)
	svc.RequestPrefix = c.RequestPrefix
	svc.ConnectOnBoot = c.ConnectOnBoot
	svc.AdminListenAddr = strings.TrimSpace(c.AdminListenAddr)
	svc.CORSOrigins = append([]string(nil), c.CorsOrigins...)

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", c.ConnectTimeout, &svc.Session.ConnectTimeout},
		{"read_timeout", c.ReadTimeout, &svc.Session.ReadTimeout},
		{"write_timeout", c.WriteTimeout, &svc.Session.WriteTimeout},
		{"approval_timeout", c.ApprovalTimeout, &svc.Session.ApprovalTimeout},
		{"reconnect_settle_delay", c.ReconnectSettleDelay, &svc.Session.Reconnect.SettleDelay},
		{"reconnect_backoff_max", c.ReconnectBackoffMax, &svc.Session.Reconnect.Backoff.MaxDelay},
	}
	for _, d := range durations {
		raw := strings.TrimSpace(d.raw)
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return panel.ServiceConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	svc.Session.Reconnect.MaxAttempts = c.ReconnectMaxAttempts
	if c.ReconnectBackoffMultiplier != 0 {
		svc.Session.Reconnect.Backoff.Multiplier = c.ReconnectBackoffMultiplier
	}
	return svc, nil
}
