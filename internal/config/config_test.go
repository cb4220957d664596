package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/nonscan/internal/panel"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "panel.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestTemplateLoadsAsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel.toml")
	if err := WriteTemplate(path, "panel", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := LoadPanelConfig(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	svc, err := cfg.ServiceConfig()
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	def := panel.DefaultServiceConfig()
	if svc.PanelID != def.PanelID || svc.PeerAddress != def.PeerAddress || svc.PeerChannel != def.PeerChannel {
		t.Fatalf("unexpected identity: %+v", svc)
	}
	if svc.Session != def.Session {
		t.Fatalf("session drifted: got %+v want %+v", svc.Session, def.Session)
	}
	if !svc.ConnectOnBoot {
		t.Fatalf("expected connect on boot")
	}
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	path := writeFile(t, "panel_id = \"keep\"\n")
	if err := WriteTemplate(path, "panel", false); err == nil {
		t.Fatalf("expected existing file error")
	}
	if err := WriteTemplate(path, "panel", true); err != nil {
		t.Fatalf("forced write: %v", err)
	}
	if _, err := Template("kiosk"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestLoadPanelConfigOverrides(t *testing.T) {
	path := writeFile(t, strings.Join([]string{
		`panel_id = "lane-3"`,
		`transport = "tcp"`,
		`tcp_address = "127.0.0.1:7031"`,
		`request_prefix = "APPROVE "`,
		`approval_timeout = "45s"`,
		`reconnect_max_attempts = 3`,
		`reconnect_backoff_multiplier = 2.0`,
		`reconnect_backoff_max = "8s"`,
		`connect_on_boot = false`,
		``,
	}, "\n"))

	cfg, err := LoadPanelConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	svc, err := cfg.ServiceConfig()
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if svc.PanelID != "lane-3" || svc.Transport != panel.TransportTCP || svc.TCPAddress != "127.0.0.1:7031" {
		t.Fatalf("unexpected transport config: %+v", svc)
	}
	if svc.RequestPrefix != "APPROVE " {
		t.Fatalf("unexpected prefix %q", svc.RequestPrefix)
	}
	if svc.Session.ApprovalTimeout != 45*time.Second {
		t.Fatalf("unexpected approval timeout %v", svc.Session.ApprovalTimeout)
	}
	r := svc.Session.Reconnect
	if r.MaxAttempts != 3 || r.Backoff.Multiplier != 2.0 || r.Backoff.MaxDelay != 8*time.Second {
		t.Fatalf("unexpected reconnect policy: %+v", r)
	}
	if r.SettleDelay != time.Second {
		t.Fatalf("settle delay should keep default, got %v", r.SettleDelay)
	}
	if svc.ConnectOnBoot {
		t.Fatalf("expected connect on boot disabled")
	}
}

func TestLoadPanelConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad duration": `read_timeout = "soon"`,
		"bad address":  `peer_address = "00:25:00"`,
		"bad channel":  `peer_channel = 0`,
		"bad kind":     `transport = "serial"`,
		"empty id":     `panel_id = " "`,
		"negative":     `approval_timeout = "-1s"`,
		"unknown key":  `peer_adress = "00:11:22:33:44:55"`,
	}
	for name, body := range cases {
		path := writeFile(t, body+"\n")
		if _, err := LoadPanelConfig(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := LoadPanelConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}
