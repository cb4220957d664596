package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const templateHeader = `# nonscan panel config
# transport: "rfcomm" dials peer_address/peer_channel, "tcp" dials tcp_address.
# approval_timeout = "0s" waits for the panel ack or link loss.
# reconnect_max_attempts <= 0 retries until the caller gives up.

`

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "panel":
		body, err := toml.Marshal(DefaultPanelConfig())
		if err != nil {
			return "", fmt.Errorf("render panel template: %w", err)
		}
		return templateHeader + string(body), nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
