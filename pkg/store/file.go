package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/UnAfraid/wgtunnel/pkg/wgconf"
)

const (
	configSuffix   = ".conf"
	lockFileName   = ".lock"
	runningFile    = ".running"
	lockRetryDelay = 50 * time.Millisecond
)

type fileStore struct {
	dir  string
	lock *flock.Flock
}

// NewFileStore keeps every tunnel in <dir>/<name>.conf. Mutations hold an
// exclusive lock on <dir>/.lock so several processes can share the directory.
func NewFileStore(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory %s - %w", dir, err)
	}
	return &fileStore{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, lockFileName)),
	}, nil
}

func (s *fileStore) Create(ctx context.Context, name string, config *wgconf.Config) error {
	if err := validateName(name); err != nil {
		return err
	}
	return s.withLock(ctx, func() error {
		if s.exists(name) {
			return fmt.Errorf("%w: %s", ErrTunnelAlreadyExists, name)
		}
		return s.write(name, config)
	})
}

func (s *fileStore) Delete(ctx context.Context, name string) error {
	return s.withLock(ctx, func() error {
		if err := os.Remove(s.path(name)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: %s", ErrTunnelNotFound, name)
			}
			return fmt.Errorf("failed to delete tunnel %s: %w", name, err)
		}
		return nil
	})
}

func (s *fileStore) Enumerate(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", s.dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := strings.CutSuffix(entry.Name(), configSuffix)
		if !ok || !IsValidName(name) {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (s *fileStore) Load(_ context.Context, name string) (*wgconf.Config, error) {
	if !IsValidName(name) {
		return nil, fmt.Errorf("%w: %s", ErrTunnelNotFound, name)
	}
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTunnelNotFound, name)
		}
		return nil, fmt.Errorf("failed to read tunnel %s: %w", name, err)
	}
	return parseConfig(name, data)
}

func (s *fileStore) Rename(ctx context.Context, name string, replacement string) error {
	if err := validateName(replacement); err != nil {
		return err
	}
	return s.withLock(ctx, func() error {
		if !s.exists(name) {
			return fmt.Errorf("%w: %s", ErrTunnelNotFound, name)
		}
		if s.exists(replacement) {
			return fmt.Errorf("%w: %s", ErrTunnelAlreadyExists, replacement)
		}
		if err := os.Rename(s.path(name), s.path(replacement)); err != nil {
			return fmt.Errorf("failed to rename tunnel %s to %s: %w", name, replacement, err)
		}
		return nil
	})
}

func (s *fileStore) Save(ctx context.Context, name string, config *wgconf.Config) error {
	return s.withLock(ctx, func() error {
		if !s.exists(name) {
			return fmt.Errorf("%w: %s", ErrTunnelNotFound, name)
		}
		return s.write(name, config)
	})
}

func (s *fileStore) SaveRunning(ctx context.Context, names []string) error {
	data, err := encodeRunning(names)
	if err != nil {
		return err
	}
	return s.withLock(ctx, func() error {
		return s.writeFile(runningFile, data)
	})
}

func (s *fileStore) LoadRunning(_ context.Context) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, runningFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read running tunnels: %w", err)
	}
	return decodeRunning(data)
}

func (s *fileStore) Close() error {
	return s.lock.Close()
}

func (s *fileStore) path(name string) string {
	return filepath.Join(s.dir, name+configSuffix)
}

func (s *fileStore) exists(name string) bool {
	if !IsValidName(name) {
		return false
	}
	_, err := os.Stat(s.path(name))
	return err == nil
}

func (s *fileStore) withLock(ctx context.Context, callback func() error) error {
	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", s.dir, err)
	}
	if !locked {
		return fmt.Errorf("failed to lock %s", s.dir)
	}
	defer func() {
		_ = s.lock.Unlock()
	}()
	return callback()
}

func (s *fileStore) write(name string, config *wgconf.Config) error {
	if err := s.writeFile(name+configSuffix, []byte(config.WgQuickString())); err != nil {
		return fmt.Errorf("failed to write tunnel %s: %w", name, err)
	}
	return nil
}

// writeFile replaces <dir>/<filename> atomically with a 0600 file.
func (s *fileStore) writeFile(filename string, data []byte) error {
	tmpFile, err := os.CreateTemp(s.dir, "."+filename+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := tmpFile.Chmod(0600); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to chmod %s: %w", tmpPath, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, filepath.Join(s.dir, filename)); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", filename, err)
	}
	return nil
}
