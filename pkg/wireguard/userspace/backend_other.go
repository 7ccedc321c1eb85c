//go:build !linux

package userspace

import "github.com/UnAfraid/wgtunnel/pkg/wireguard/driver"

func Register() {
	driver.Register(driver.KindUserspace, nil, false)
}
