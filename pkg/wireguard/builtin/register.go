package builtin

import (
	"github.com/UnAfraid/wgtunnel/pkg/wireguard/kernel"
	"github.com/UnAfraid/wgtunnel/pkg/wireguard/userspace"
)

// RegisterAll registers all built-in wireguard backend implementations.
func RegisterAll() {
	kernel.Register()
	userspace.Register()
}
