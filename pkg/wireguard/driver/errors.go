package driver

import "errors"

var (
	ErrUnknownKind    = errors.New("unknown backend kind")
	ErrUnsupported    = errors.New("backend is not supported on this platform")
	ErrInvalidState   = errors.New("invalid tunnel state")
	ErrCommandFailed  = errors.New("backend command failed")
	ErrTunnelNotFound = errors.New("tunnel is not running")
)
