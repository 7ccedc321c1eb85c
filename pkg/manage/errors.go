package manage

import (
	"errors"
)

var (
	ErrTunnelIsUp          = errors.New("tunnel is up")
	ErrToolsNotConfigured  = errors.New("tools installer is not configured")
	ErrNoTunnels           = errors.New("no tunnels exist")
	ErrNoBackendConfigured = errors.New("no backend configured")
)
