package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"

	"github.com/UnAfraid/wgtunnel/pkg/wgconf"
)

var nameRegexp = regexp.MustCompile(`^[a-zA-Z0-9_=+.-]{1,15}$`)

// Store persists tunnel configurations by name.
type Store interface {
	Create(ctx context.Context, name string, config *wgconf.Config) error
	Delete(ctx context.Context, name string) error
	Enumerate(ctx context.Context) ([]string, error)
	Load(ctx context.Context, name string) (*wgconf.Config, error)
	Rename(ctx context.Context, name string, replacement string) error
	Save(ctx context.Context, name string, config *wgconf.Config) error
	// SaveRunning remembers the names of the tunnels that are up so they can
	// be brought back later. LoadRunning returns them, or nothing when no set
	// was saved.
	SaveRunning(ctx context.Context, names []string) error
	LoadRunning(ctx context.Context) ([]string, error)
	Close() error
}

// IsValidName reports whether name can be used as a tunnel (and interface) name.
func IsValidName(name string) bool {
	return nameRegexp.MatchString(name)
}

func validateName(name string) error {
	if !IsValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func parseConfig(name string, data []byte) (*wgconf.Config, error) {
	config, err := wgconf.ParseString(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse tunnel %s config: %w", name, err)
	}
	return config, nil
}

func encodeRunning(names []string) ([]byte, error) {
	names = slices.Clone(names)
	slices.Sort(names)
	names = slices.Compact(names)
	data, err := json.Marshal(names)
	if err != nil {
		return nil, fmt.Errorf("failed to encode running tunnels: %w", err)
	}
	return data, nil
}

func decodeRunning(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("failed to decode running tunnels: %w", err)
	}
	return names, nil
}
