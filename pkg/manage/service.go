package manage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"

	"github.com/UnAfraid/wgtunnel/pkg/store"
	"github.com/UnAfraid/wgtunnel/pkg/toolsinstaller"
	"github.com/UnAfraid/wgtunnel/pkg/wgconf"
	"github.com/UnAfraid/wgtunnel/pkg/wireguard/driver"
)

// BackendProvider hands out the backend, choosing it on first use.
type BackendProvider interface {
	Backend(ctx context.Context) (driver.Backend, error)
	Close(ctx context.Context) error
}

type ToolsInstaller interface {
	AreInstalled(ctx context.Context) (toolsinstaller.Result, error)
	Install(ctx context.Context) (toolsinstaller.Result, error)
}

type Service interface {
	Tunnels(ctx context.Context) ([]*Tunnel, error)
	Config(ctx context.Context, name string) (*wgconf.Config, error)
	Create(ctx context.Context, name string, config *wgconf.Config) (*Tunnel, error)
	Save(ctx context.Context, name string, config *wgconf.Config) (*Tunnel, error)
	Delete(ctx context.Context, name string) error
	Rename(ctx context.Context, name string, replacement string) (*Tunnel, error)
	State(ctx context.Context, name string) (driver.State, error)
	SetState(ctx context.Context, name string, state driver.State) (driver.State, error)
	Statistics(ctx context.Context, name string) (*driver.Statistics, error)
	ToolsStatus(ctx context.Context) (toolsinstaller.Result, error)
	InstallTools(ctx context.Context) (toolsinstaller.Result, error)
	SaveState(ctx context.Context) error
	RestoreState(ctx context.Context) error
	Export(ctx context.Context, w io.Writer) error
	Close(ctx context.Context) error
}

type service struct {
	store    store.Store
	backends BackendProvider
	tools    ToolsInstaller

	mu sync.Mutex
}

func NewService(store store.Store, backends BackendProvider, tools ToolsInstaller) Service {
	return &service{
		store:    store,
		backends: backends,
		tools:    tools,
	}
}

func (s *service) backend(ctx context.Context) (driver.Backend, error) {
	if s.backends == nil {
		return nil, ErrNoBackendConfigured
	}
	b, err := s.backends.Backend(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get backend: %w", err)
	}
	return b, nil
}

func (s *service) Tunnels(ctx context.Context) ([]*Tunnel, error) {
	names, err := s.store.Enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate tunnels: %w", err)
	}

	tunnels := make([]*Tunnel, 0, len(names))
	for _, name := range names {
		state, err := s.State(ctx, name)
		if err != nil {
			logrus.
				WithError(err).
				WithField("name", name).
				Warn("failed to get tunnel state")
		}
		tunnels = append(tunnels, &Tunnel{
			Name:  name,
			State: state,
		})
	}
	return tunnels, nil
}

func (s *service) Config(ctx context.Context, name string) (*wgconf.Config, error) {
	return s.store.Load(ctx, name)
}

func (s *service) Create(ctx context.Context, name string, config *wgconf.Config) (*Tunnel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Create(ctx, name, config); err != nil {
		return nil, fmt.Errorf("failed to create tunnel %s: %w", name, err)
	}

	logrus.WithField("name", name).Info("tunnel created")
	return &Tunnel{
		Name:  name,
		State: driver.StateDown,
	}, nil
}

// Save stores config and, when the tunnel is up, applies it to the running
// tunnel.
func (s *service) Save(ctx context.Context, name string, config *wgconf.Config) (*Tunnel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Save(ctx, name, config); err != nil {
		return nil, fmt.Errorf("failed to save tunnel %s: %w", name, err)
	}

	state, err := s.State(ctx, name)
	if err != nil {
		return nil, err
	}
	if state == driver.StateUp {
		b, err := s.backend(ctx)
		if err != nil {
			return nil, err
		}
		if err := b.Up(ctx, name, config); err != nil {
			return nil, fmt.Errorf("failed to apply tunnel %s config: %w", name, err)
		}
	}

	logrus.WithField("name", name).Info("tunnel saved")
	return &Tunnel{
		Name:  name,
		State: state,
	}, nil
}

// Delete brings the tunnel down before removing it. If removal fails the
// tunnel is brought back up.
func (s *service) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := s.store.Load(ctx, name)
	if err != nil {
		return err
	}

	state, err := s.State(ctx, name)
	if err != nil {
		return err
	}

	var b driver.Backend
	if state == driver.StateUp {
		b, err = s.backend(ctx)
		if err != nil {
			return err
		}
		if err := b.Down(ctx, name); err != nil {
			return fmt.Errorf("failed to bring tunnel %s down: %w", name, err)
		}
	}

	if err := s.store.Delete(ctx, name); err != nil {
		if b != nil {
			if upErr := b.Up(ctx, name, config); upErr != nil {
				logrus.
					WithError(upErr).
					WithField("name", name).
					Error("failed to restore tunnel after failed delete")
			}
		}
		return fmt.Errorf("failed to delete tunnel %s: %w", name, err)
	}

	logrus.WithField("name", name).Info("tunnel deleted")
	return nil
}

func (s *service) Rename(ctx context.Context, name string, replacement string) (*Tunnel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.State(ctx, name)
	if err != nil {
		return nil, err
	}
	if state == driver.StateUp {
		return nil, fmt.Errorf("%w: %s", ErrTunnelIsUp, name)
	}

	if err := s.store.Rename(ctx, name, replacement); err != nil {
		return nil, fmt.Errorf("failed to rename tunnel %s: %w", name, err)
	}

	logrus.
		WithField("name", name).
		WithField("replacement", replacement).
		Info("tunnel renamed")
	return &Tunnel{
		Name:  replacement,
		State: driver.StateDown,
	}, nil
}

func (s *service) State(ctx context.Context, name string) (driver.State, error) {
	b, err := s.backend(ctx)
	if err != nil {
		return driver.StateDown, err
	}
	state, err := b.State(ctx, name)
	if err != nil {
		return driver.StateDown, fmt.Errorf("failed to get tunnel %s state: %w", name, err)
	}
	return state, nil
}

// SetState brings the tunnel up or down; StateToggle flips the current state.
// The resulting state is returned.
func (s *service) SetState(ctx context.Context, name string, state driver.State) (driver.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := s.store.Load(ctx, name)
	if err != nil {
		return driver.StateDown, err
	}

	b, err := s.backend(ctx)
	if err != nil {
		return driver.StateDown, err
	}

	current, err := b.State(ctx, name)
	if err != nil {
		return driver.StateDown, fmt.Errorf("failed to get tunnel %s state: %w", name, err)
	}

	desired := state.Resolve(current)
	if desired == current {
		return current, nil
	}

	switch desired {
	case driver.StateUp:
		err = b.Up(ctx, name, config)
	case driver.StateDown:
		err = b.Down(ctx, name)
	default:
		return current, fmt.Errorf("%w: %s", driver.ErrInvalidState, desired)
	}
	if err != nil {
		return current, fmt.Errorf("failed to bring tunnel %s %s: %w", name, desired, err)
	}

	logrus.
		WithField("name", name).
		WithField("state", desired.String()).
		Info("tunnel state changed")
	return desired, nil
}

func (s *service) Statistics(ctx context.Context, name string) (*driver.Statistics, error) {
	b, err := s.backend(ctx)
	if err != nil {
		return nil, err
	}
	return b.Statistics(ctx, name)
}

func (s *service) ToolsStatus(ctx context.Context) (toolsinstaller.Result, error) {
	if s.tools == nil {
		return toolsinstaller.Result{Status: toolsinstaller.StatusError}, ErrToolsNotConfigured
	}
	return s.tools.AreInstalled(ctx)
}

func (s *service) InstallTools(ctx context.Context) (toolsinstaller.Result, error) {
	if s.tools == nil {
		return toolsinstaller.Result{Status: toolsinstaller.StatusError}, ErrToolsNotConfigured
	}
	return s.tools.Install(ctx)
}

// SaveState remembers which tunnels are up. Only the kernel backend keeps
// tunnels across restarts, so other backends save nothing.
func (s *service) SaveState(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.backend(ctx)
	if err != nil {
		return err
	}
	if b.Kind() != driver.KindKernel {
		return nil
	}

	names, err := s.store.Enumerate(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate tunnels: %w", err)
	}

	var running []string
	for _, name := range names {
		state, err := b.State(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to get tunnel %s state: %w", name, err)
		}
		if state == driver.StateUp {
			running = append(running, name)
		}
	}

	if err := s.store.SaveRunning(ctx, running); err != nil {
		return fmt.Errorf("failed to save running tunnels: %w", err)
	}

	logrus.WithField("tunnels", running).Info("tunnel state saved")
	return nil
}

// RestoreState brings up the tunnels saved by SaveState that still exist.
// It does nothing unless the kernel backend is in use.
func (s *service) RestoreState(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.backend(ctx)
	if err != nil {
		return err
	}
	if b.Kind() != driver.KindKernel {
		return nil
	}

	running, err := s.store.LoadRunning(ctx)
	if err != nil {
		return fmt.Errorf("failed to load running tunnels: %w", err)
	}
	names, err := s.store.Enumerate(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate tunnels: %w", err)
	}

	var result *multierror.Error
	for _, name := range running {
		if !slices.Contains(names, name) {
			continue
		}
		state, err := b.State(ctx, name)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to get tunnel %s state: %w", name, err))
			continue
		}
		if state == driver.StateUp {
			continue
		}
		config, err := s.store.Load(ctx, name)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if err := b.Up(ctx, name, config); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to bring tunnel %s up: %w", name, err))
			continue
		}
		logrus.WithField("name", name).Info("tunnel restored")
	}
	return result.ErrorOrNil()
}

// Export writes a zip archive with one <name>.conf entry per tunnel.
func (s *service) Export(ctx context.Context, w io.Writer) error {
	names, err := s.store.Enumerate(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate tunnels: %w", err)
	}
	if len(names) == 0 {
		return ErrNoTunnels
	}

	configs := make([]*wgconf.Config, 0, len(names))
	for _, name := range names {
		config, err := s.store.Load(ctx, name)
		if err != nil {
			return err
		}
		configs = append(configs, config)
	}

	zipWriter := zip.NewWriter(w)
	for n, name := range names {
		entry, err := zipWriter.Create(name + ".conf")
		if err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
		if _, err := io.WriteString(entry, configs[n].WgQuickString()); err != nil {
			return fmt.Errorf("failed to write %s to archive: %w", name, err)
		}
	}
	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

// Close brings every tunnel that is up down and closes the backend.
func (s *service) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backends == nil {
		return nil
	}

	var result *multierror.Error
	names, err := s.store.Enumerate(ctx)
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to enumerate tunnels: %w", err))
	}

	b, err := s.backends.Backend(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		result = multierror.Append(result, fmt.Errorf("failed to get backend: %w", err))
	}
	if b != nil {
		for _, name := range names {
			state, err := b.State(ctx, name)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("failed to get tunnel %s state: %w", name, err))
				continue
			}
			if state != driver.StateUp {
				continue
			}
			if err := b.Down(ctx, name); err != nil {
				result = multierror.Append(result, fmt.Errorf("failed to bring tunnel %s down: %w", name, err))
			}
		}
	}

	if err := s.backends.Close(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
