package api

import (
	"errors"
)

var (
	ErrIntegrationDisabled = errors.New("integration is disabled")
	ErrInvalidSecret       = errors.New("invalid integration secret")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrPeerNotFound        = errors.New("peer not found")
)
