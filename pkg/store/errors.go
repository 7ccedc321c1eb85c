package store

import (
	"errors"
)

var (
	ErrTunnelNotFound      = errors.New("tunnel not found")
	ErrTunnelAlreadyExists = errors.New("tunnel already exists")
	ErrInvalidName         = errors.New("invalid tunnel name")
	ErrReadOnly            = errors.New("database is readonly")
)
