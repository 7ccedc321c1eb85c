package resolver

import "errors"

var (
	ErrNoServers   = errors.New("no dns servers configured")
	ErrNotFound    = errors.New("host not found")
	ErrNoAddresses = errors.New("host has no addresses")
)
