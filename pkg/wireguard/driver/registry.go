package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/UnAfraid/wgtunnel/pkg/rootshell"
	"github.com/UnAfraid/wgtunnel/pkg/wgconf"
)

// ToolsLinker makes the wg and wg-quick tools available to a root shell.
type ToolsLinker interface {
	EnsureAvailable(ctx context.Context) error
}

// Options carries the collaborators a backend may need.
type Options struct {
	Shell     rootshell.Shell
	Tools     ToolsLinker
	Resolver  wgconf.HostResolver
	ConfigDir string
}

// Factory creates a Backend.
type Factory func(ctx context.Context, options Options) (Backend, error)

// Registration holds the factory and platform support of a backend kind.
type Registration struct {
	Factory   Factory
	Supported bool
}

var (
	registryMu  sync.RWMutex
	registryMap = make(map[Kind]*Registration)
)

// Register registers a backend kind with its factory and platform support.
func Register(kind Kind, factory Factory, supported bool) {
	registryMu.Lock()
	defer registryMu.Unlock()

	registryMap[kind] = &Registration{
		Factory:   factory,
		Supported: supported,
	}
}

func IsSupported(kind Kind) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()

	reg, ok := registryMap[kind]
	return ok && reg.Supported
}

func Create(ctx context.Context, kind Kind, options Options) (Backend, error) {
	registryMu.RLock()
	reg, ok := registryMap[kind]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if !reg.Supported {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}
	if reg.Factory == nil {
		return nil, fmt.Errorf("backend kind %s has no factory registered", kind)
	}

	return reg.Factory(ctx, options)
}
