package wireguard

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/UnAfraid/wgtunnel/pkg/wireguard/driver"
)

const DefaultKernelModulePath = "/sys/module/wireguard"

// Decide picks the backend kind. The kernel backend is used only when the
// module is loaded, root is available and the user has not forced userspace.
func Decide(hasKernelModule bool, forceUserspace bool, rootAvailable bool) driver.Kind {
	if hasKernelModule && rootAvailable && !forceUserspace {
		return driver.KindKernel
	}
	return driver.KindUserspace
}

type SelectorOptions struct {
	KernelModulePath string
	ForceUserspace   bool
	Backend          driver.Options
}

// Selector lazily chooses and creates the backend on first use. Failing to
// get root, or to create the kernel backend, falls back to userspace.
type Selector struct {
	options         SelectorOptions
	hasKernelModule func() bool

	mu      sync.Mutex
	backend driver.Backend
}

func NewSelector(options SelectorOptions) *Selector {
	if options.KernelModulePath == "" {
		options.KernelModulePath = DefaultKernelModulePath
	}

	s := &Selector{
		options: options,
	}
	s.hasKernelModule = func() bool {
		_, err := os.Stat(s.options.KernelModulePath)
		return err == nil
	}
	return s
}

func (s *Selector) Backend(ctx context.Context) (driver.Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend != nil {
		return s.backend, nil
	}

	hasKernelModule := s.hasKernelModule()
	rootAvailable := false
	if hasKernelModule && !s.options.ForceUserspace {
		rootAvailable = s.startRootShell(ctx)
	}

	kind := Decide(hasKernelModule, s.options.ForceUserspace, rootAvailable)
	b, err := driver.Create(ctx, kind, s.options.Backend)
	if err != nil && kind == driver.KindKernel {
		logrus.
			WithError(err).
			Warn("failed to create kernel backend, falling back to userspace")
		kind = driver.KindUserspace
		b, err = driver.Create(ctx, kind, s.options.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", kind, err)
	}

	logrus.
		WithField("kind", kind.String()).
		WithField("kernelModule", hasKernelModule).
		WithField("forceUserspace", s.options.ForceUserspace).
		WithField("root", rootAvailable).
		Info("selected backend")

	s.backend = b
	return b, nil
}

func (s *Selector) startRootShell(ctx context.Context) bool {
	if s.options.Backend.Shell == nil {
		return false
	}
	if err := s.options.Backend.Shell.Start(ctx); err != nil {
		logrus.
			WithError(err).
			Warn("root shell unavailable, falling back to userspace")
		return false
	}
	return true
}

// Close closes the selected backend, if any.
func (s *Selector) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend == nil {
		return nil
	}

	b := s.backend
	s.backend = nil
	if err := b.Close(ctx); err != nil {
		return fmt.Errorf("failed to close %s backend: %w", b.Kind(), err)
	}
	return nil
}
