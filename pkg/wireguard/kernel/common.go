package kernel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/UnAfraid/wgtunnel/pkg/key"
	"github.com/UnAfraid/wgtunnel/pkg/wgconf"
	"github.com/UnAfraid/wgtunnel/pkg/wireguard/driver"
)

func defaultConfigDir() string {
	return filepath.Join(os.TempDir(), "wgtunnel")
}

func configFilePath(configDir string, name string) string {
	return filepath.Join(configDir, name+".conf")
}

// writeConfig atomically writes config to <configDir>/<name>.conf, readable
// by the owner only.
func writeConfig(configDir string, name string, config *wgconf.Config) (string, error) {
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	configPath := configFilePath(configDir, name)
	tmpFile, err := os.CreateTemp(configDir, fmt.Sprintf(".%s-*.conf", name))
	if err != nil {
		return "", fmt.Errorf("failed to create temporary config file: %w", err)
	}
	tmpPath := tmpFile.Name()

	cleanup := func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmpFile.WriteString(config.WgQuickString()); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := tmpFile.Chmod(0o600); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to chmod temporary config file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to close temporary config file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to move config into place: %w", err)
	}

	return configPath, nil
}

// parseDump parses the output of "wg show <name> dump".
func parseDump(output string) (*driver.Statistics, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil, errors.New("wireguard dump output is empty")
	}

	lines := strings.Split(trimmed, "\n")
	if fields := strings.Split(lines[0], "\t"); len(fields) < 4 {
		return nil, fmt.Errorf("invalid interface dump line: %q", lines[0])
	}

	statistics := &driver.Statistics{}
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 8 {
			return nil, fmt.Errorf("invalid peer dump line: %q", line)
		}

		publicKey, err := key.FromBase64(fields[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse peer public key: %w", err)
		}

		latestHandshakeUnix, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse latest handshake for peer %s: %w", fields[0], err)
		}
		receiveBytes, err := strconv.ParseInt(fields[5], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse receive bytes for peer %s: %w", fields[0], err)
		}
		transmitBytes, err := strconv.ParseInt(fields[6], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse transmit bytes for peer %s: %w", fields[0], err)
		}

		var latestHandshake time.Time
		if latestHandshakeUnix > 0 {
			latestHandshake = time.Unix(latestHandshakeUnix, 0)
		}

		endpoint := fields[2]
		if endpoint == "(none)" {
			endpoint = ""
		}

		statistics.Peers = append(statistics.Peers, driver.PeerStatistics{
			PublicKey:         publicKey,
			Endpoint:          endpoint,
			LastHandshakeTime: latestHandshake,
			ReceiveBytes:      receiveBytes,
			TransmitBytes:     transmitBytes,
		})
	}

	return statistics, nil
}
