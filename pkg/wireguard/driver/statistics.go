package driver

import (
	"time"

	"github.com/UnAfraid/wgtunnel/pkg/key"
)

type Statistics struct {
	Peers []PeerStatistics `json:"peers"`
}

func (s *Statistics) TotalReceiveBytes() int64 {
	var total int64
	for _, p := range s.Peers {
		total += p.ReceiveBytes
	}
	return total
}

func (s *Statistics) TotalTransmitBytes() int64 {
	var total int64
	for _, p := range s.Peers {
		total += p.TransmitBytes
	}
	return total
}

func (s *Statistics) Peer(publicKey key.Key) (PeerStatistics, bool) {
	for _, p := range s.Peers {
		if p.PublicKey.Equal(publicKey) {
			return p, true
		}
	}
	return PeerStatistics{}, false
}

type PeerStatistics struct {
	PublicKey         key.Key   `json:"publicKey"`
	Endpoint          string    `json:"endpoint,omitempty"`
	LastHandshakeTime time.Time `json:"lastHandshakeTime"`
	ReceiveBytes      int64     `json:"receiveBytes"`
	TransmitBytes     int64     `json:"transmitBytes"`
}
