package userspace

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/UnAfraid/wgtunnel/pkg/key"
	"github.com/UnAfraid/wgtunnel/pkg/wireguard/driver"
)

// parseStatistics reads peer statistics from the output of a userspace API
// "get" operation. Device level attributes are ignored.
func parseStatistics(output string) (*driver.Statistics, error) {
	statistics := &driver.Statistics{}

	var (
		peer          *driver.PeerStatistics
		handshakeSec  int64
		handshakeNsec int64
	)
	flush := func() {
		if peer == nil {
			return
		}
		if handshakeSec != 0 || handshakeNsec != 0 {
			peer.LastHandshakeTime = time.Unix(handshakeSec, handshakeNsec)
		}
		statistics.Peers = append(statistics.Peers, *peer)
		peer = nil
		handshakeSec, handshakeNsec = 0, 0
	}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		name, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid uapi line: %q", line)
		}

		if name == "public_key" {
			flush()
			publicKey, err := key.FromHex(value)
			if err != nil {
				return nil, fmt.Errorf("failed to parse peer public key: %w", err)
			}
			peer = &driver.PeerStatistics{PublicKey: publicKey}
			continue
		}
		if peer == nil {
			continue
		}

		var err error
		switch name {
		case "endpoint":
			peer.Endpoint = value
		case "rx_bytes":
			peer.ReceiveBytes, err = strconv.ParseInt(value, 10, 64)
		case "tx_bytes":
			peer.TransmitBytes, err = strconv.ParseInt(value, 10, 64)
		case "last_handshake_time_sec":
			handshakeSec, err = strconv.ParseInt(value, 10, 64)
		case "last_handshake_time_nsec":
			handshakeNsec, err = strconv.ParseInt(value, 10, 64)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read uapi output: %w", err)
	}
	flush()

	return statistics, nil
}
