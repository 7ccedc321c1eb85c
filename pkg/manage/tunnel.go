package manage

import (
	"github.com/UnAfraid/wgtunnel/pkg/wireguard/driver"
)

type Tunnel struct {
	Name  string       `json:"name"`
	State driver.State `json:"state"`
}
