//go:build !linux

package kernel

import "github.com/UnAfraid/wgtunnel/pkg/wireguard/driver"

func Register() {
	driver.Register(driver.KindKernel, nil, false)
}
