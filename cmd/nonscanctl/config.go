package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/nonscan/internal/panel"
)

type fileConfig struct {
	PanelID       string `toml:"panel_id"`
	Transport     string `toml:"transport"`
	PeerAddress   string `toml:"peer_address"`
	PeerChannel   int    `toml:"peer_channel"`
	TCPAddress    string `toml:"tcp_address"`
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

// loadServiceConfig overlays only the keys present in path onto the defaults.
func loadServiceConfig(path string) (panel.ServiceConfig, error) {
	cfg := panel.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return panel.ServiceConfig{}, fmt.Errorf("load panel config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return panel.ServiceConfig{}, fmt.Errorf("load panel config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("panel_id") {
		if id := strings.TrimSpace(raw.PanelID); id != "" {
			cfg.PanelID = id
		}
	}
	if meta.IsDefined("transport") {
		cfg.Transport = panel.TransportKind(strings.ToLower(strings.TrimSpace(raw.Transport)))
	}
	if meta.IsDefined("peer_address") {
		cfg.PeerAddress = strings.TrimSpace(raw.PeerAddress)
	}
	if meta.IsDefined("peer_channel") {
		if raw.PeerChannel < 0 || raw.PeerChannel > 255 {
			return panel.ServiceConfig{}, fmt.Errorf("peer_channel out of range: %d", raw.PeerChannel)
		}
		cfg.PeerChannel = uint8(raw.PeerChannel)
	}
	if meta.IsDefined("tcp_address") {
		cfg.TCPAddress = strings.TrimSpace(raw.TCPAddress)
	}
	if meta.IsDefined("request_prefix") {
		cfg.RequestPrefix = raw.RequestPrefix
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.Session.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
		{"approval_timeout", raw.ApprovalTimeout, &cfg.Session.ApprovalTimeout},
		{"reconnect_settle_delay", raw.ReconnectSettleDelay, &cfg.Session.Reconnect.SettleDelay},
		{"reconnect_backoff_max", raw.ReconnectBackoffMax, &cfg.Session.Reconnect.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return panel.ServiceConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("reconnect_max_attempts") {
		cfg.Session.Reconnect.MaxAttempts = raw.ReconnectMaxAttempts
	}
	if meta.IsDefined("reconnect_backoff_multiplier") {
		cfg.Session.Reconnect.Backoff.Multiplier = raw.ReconnectBackoffMultiplier
	}
	if meta.IsDefined("connect_on_boot") {
		cfg.ConnectOnBoot = raw.ConnectOnBoot
	}
	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = normalizeOrigins(raw.CorsOrigins)
	}

	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
