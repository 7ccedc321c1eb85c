package userspace

import (
	"strings"
	"testing"
	"time"
)

func TestParseStatistics(t *testing.T) {
	output := strings.Join([]string{
		"private_key=c809f3e5317e9575c9b5ed78b638b7ce530dabe85ddab614220241801ddf0669",
		"listen_port=51820",
		"public_key=1c8828f7137324c58b2804928624ea2326f1674537c062e251e2753ca7fcca4c",
		"endpoint=192.0.2.10:51820",
		"last_handshake_time_sec=1700000000",
		"last_handshake_time_nsec=5",
		"tx_bytes=456",
		"rx_bytes=123",
		"persistent_keepalive_interval=25",
		"allowed_ip=0.0.0.0/0",
		"public_key=000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
		"last_handshake_time_sec=0",
		"last_handshake_time_nsec=0",
		"tx_bytes=0",
		"rx_bytes=0",
		"protocol_version=1",
		"errno=0",
		"",
	}, "\n")

	statistics, err := parseStatistics(output)
	if err != nil {
		t.Fatalf("parseStatistics failed: %v", err)
	}
	if len(statistics.Peers) != 2 {
		t.Fatalf("expected 2 peers, got %d", len(statistics.Peers))
	}

	peer := statistics.Peers[0]
	if peer.PublicKey.Base64() != "HIgo9xNzJMWLKASShiTqIybxZ0U3wGLiUeJ1PKf8ykw=" {
		t.Fatalf("unexpected public key %s", peer.PublicKey)
	}
	if peer.Endpoint != "192.0.2.10:51820" {
		t.Fatalf("unexpected endpoint %q", peer.Endpoint)
	}
	if !peer.LastHandshakeTime.Equal(time.Unix(1700000000, 5)) {
		t.Fatalf("unexpected handshake %s", peer.LastHandshakeTime)
	}
	if peer.ReceiveBytes != 123 || peer.TransmitBytes != 456 {
		t.Fatalf("unexpected transfer %d/%d", peer.ReceiveBytes, peer.TransmitBytes)
	}
	if !statistics.Peers[1].LastHandshakeTime.IsZero() {
		t.Fatalf("expected no handshake for idle peer")
	}
}

func TestParseStatisticsRejectsGarbage(t *testing.T) {
	for _, output := range []string{"garbage", "public_key=zz", "public_key=1c8828f7137324c58b2804928624ea2326f1674537c062e251e2753ca7fcca4c\nrx_bytes=x"} {
		if _, err := parseStatistics(output); err == nil {
			t.Fatalf("expected error for %q", output)
		}
	}
}
