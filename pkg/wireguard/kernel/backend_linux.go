//go:build linux

package kernel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/UnAfraid/wgtunnel/pkg/key"
	"github.com/UnAfraid/wgtunnel/pkg/rootshell"
	"github.com/UnAfraid/wgtunnel/pkg/wgconf"
	"github.com/UnAfraid/wgtunnel/pkg/wireguard/driver"
)

func Register() {
	driver.Register(driver.KindKernel, func(_ context.Context, options driver.Options) (driver.Backend, error) {
		return NewKernelBackend(options)
	}, true)
}

// kernelBackend drives the kernel module with wg-quick(8) run in the root
// shell.
type kernelBackend struct {
	shell     rootshell.Shell
	tools     driver.ToolsLinker
	configDir string
	client    *wgctrl.Client
}

func NewKernelBackend(options driver.Options) (driver.Backend, error) {
	if options.Shell == nil {
		return nil, errors.New("kernel backend requires a root shell")
	}

	configDir := strings.TrimSpace(options.ConfigDir)
	if configDir == "" {
		configDir = defaultConfigDir()
	}

	client, err := wgctrl.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize wgctrl client: %w", err)
	}

	return &kernelBackend{
		shell:     options.Shell,
		tools:     options.Tools,
		configDir: configDir,
		client:    client,
	}, nil
}

func (b *kernelBackend) Kind() driver.Kind {
	return driver.KindKernel
}

func (b *kernelBackend) Up(ctx context.Context, name string, config *wgconf.Config) error {
	if b.tools != nil {
		if err := b.tools.EnsureAvailable(ctx); err != nil {
			return fmt.Errorf("failed to make wg-quick available: %w", err)
		}
	}

	state, err := b.State(ctx, name)
	if err != nil {
		return err
	}
	if state == driver.StateUp {
		if err := b.Down(ctx, name); err != nil {
			logrus.WithError(err).
				WithField("interface", name).
				Warn("failed to stop interface before reconfiguration")
		}
	}

	configPath, err := writeConfig(b.configDir, name, config)
	if err != nil {
		return err
	}

	if _, err := b.runWGQuick(ctx, "up", configPath); err != nil {
		return fmt.Errorf("failed to bring interface %s up: %w", name, err)
	}
	return nil
}

func (b *kernelBackend) Down(ctx context.Context, name string) error {
	configPath := configFilePath(b.configDir, name)
	if _, err := os.Stat(configPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to stat config file %s: %w", configPath, err)
		}
		return deleteInterface(name)
	}

	if _, err := b.runWGQuick(ctx, "down", configPath); err != nil {
		link, findErr := findInterface(name)
		if findErr == nil && link == nil {
			_ = os.Remove(configPath)
			return nil
		}
		return fmt.Errorf("failed to bring interface %s down: %w", name, err)
	}

	if err := os.Remove(configPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).
			WithField("path", configPath).
			Warn("failed to remove config file")
	}
	return nil
}

func (b *kernelBackend) State(_ context.Context, name string) (driver.State, error) {
	link, err := findInterface(name)
	if err != nil {
		return driver.StateDown, err
	}
	if link == nil {
		return driver.StateDown, nil
	}
	return driver.StateUp, nil
}

func (b *kernelBackend) Statistics(ctx context.Context, name string) (*driver.Statistics, error) {
	device, err := b.client.Device(name)
	if err == nil {
		return deviceStatistics(device), nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", driver.ErrTunnelNotFound, name)
	}

	logrus.WithError(err).
		WithField("interface", name).
		Debug("wgctrl unavailable, reading statistics through the root shell")

	output, err := b.runShell(ctx, "wg show "+rootshell.Quote(name)+" dump")
	if err != nil {
		return nil, fmt.Errorf("failed to read statistics of %s: %w", name, err)
	}
	return parseDump(output)
}

func (b *kernelBackend) Close(_ context.Context) error {
	return b.client.Close()
}

func (b *kernelBackend) runWGQuick(ctx context.Context, action string, configPath string) (string, error) {
	return b.runShell(ctx, "wg-quick "+action+" "+rootshell.Quote(configPath))
}

func (b *kernelBackend) runShell(ctx context.Context, script string) (string, error) {
	var out bytes.Buffer
	exitCode, err := b.shell.Run(ctx, &out, script)
	if err != nil {
		return "", err
	}
	if exitCode != 0 {
		trimmed := strings.TrimSpace(out.String())
		if trimmed == "" {
			return "", fmt.Errorf("%w: %s: exit code %d", driver.ErrCommandFailed, script, exitCode)
		}
		return "", fmt.Errorf("%w: %s: exit code %d: %s", driver.ErrCommandFailed, script, exitCode, trimmed)
	}
	return out.String(), nil
}

func deviceStatistics(device *wgtypes.Device) *driver.Statistics {
	statistics := &driver.Statistics{}
	for _, p := range device.Peers {
		var endpoint string
		if p.Endpoint != nil {
			endpoint = p.Endpoint.String()
		}
		statistics.Peers = append(statistics.Peers, driver.PeerStatistics{
			PublicKey:         key.Key(p.PublicKey),
			Endpoint:          endpoint,
			LastHandshakeTime: p.LastHandshakeTime,
			ReceiveBytes:      p.ReceiveBytes,
			TransmitBytes:     p.TransmitBytes,
		})
	}
	return statistics
}

func findInterface(name string) (netlink.Link, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		var linkNotFoundErr netlink.LinkNotFoundError
		if os.IsNotExist(err) || errors.As(err, &linkNotFoundErr) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find interface by name %s: %w", name, err)
	}
	return link, nil
}

func deleteInterface(name string) error {
	link, err := findInterface(name)
	if err != nil {
		return err
	}
	if link == nil {
		return nil
	}

	if err := netlink.LinkDel(link); err != nil {
		return fmt.Errorf("failed to delete interface %s: %w", name, err)
	}
	return nil
}
