package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/UnAfraid/wgtunnel/pkg/config"
	"github.com/UnAfraid/wgtunnel/pkg/manage"
	"github.com/UnAfraid/wgtunnel/pkg/resolver"
	"github.com/UnAfraid/wgtunnel/pkg/rootshell"
	"github.com/UnAfraid/wgtunnel/pkg/store"
	"github.com/UnAfraid/wgtunnel/pkg/toolsinstaller"
	"github.com/UnAfraid/wgtunnel/pkg/wireguard"
	"github.com/UnAfraid/wgtunnel/pkg/wireguard/builtin"
	"github.com/UnAfraid/wgtunnel/pkg/wireguard/driver"
)

const (
	defaultBBoltPath = "wgtunnel.db"
	defaultFileDir   = "tunnels"
)

// app holds the services shared by the commands.
type app struct {
	shell         *rootshell.RootShell
	installer     *toolsinstaller.Installer
	selector      *wireguard.Selector
	store         store.Store
	manageService manage.Service
}

// localBinaryDir resolves the configured local binary directory once, so the
// root shell PATH and the tool links agree whatever the working directory of
// the shell is.
func localBinaryDir(conf *config.Config) (string, error) {
	if conf.Tools.LocalBinaryDir == "" {
		return "", nil
	}
	dir, err := filepath.Abs(conf.Tools.LocalBinaryDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve local binary directory %s: %w", conf.Tools.LocalBinaryDir, err)
	}
	return dir, nil
}

func newRootShell(conf *config.Config, localBinaryDir string) *rootshell.RootShell {
	options := []rootshell.Option{
		rootshell.WithRootCheck(conf.RootShell.CheckRoot),
	}
	if len(conf.RootShell.Command) > 0 {
		options = append(options, rootshell.WithCommand(conf.RootShell.Command...))
	}
	if localBinaryDir != "" {
		options = append(options, rootshell.WithLocalBinaryDir(localBinaryDir))
	}
	return rootshell.New(options...)
}

func newInstaller(conf *config.Config, shell rootshell.Shell, localBinaryDir string) *toolsinstaller.Installer {
	return toolsinstaller.New(shell, toolsinstaller.Options{
		NativeLibraryDir: conf.Tools.NativeLibraryDir,
		LocalBinaryDir:   localBinaryDir,
		InstallDirs:      conf.Tools.InstallDirs,
		VersionName:      conf.Tools.VersionName,
		VersionCode:      conf.Tools.VersionCode,
	})
}

func newStore(conf *config.Config) (store.Store, error) {
	switch conf.Store.Type {
	case config.StoreTypeBBolt:
		path := conf.Store.Path
		if path == "" {
			path = defaultBBoltPath
		}
		db, err := store.NewBBoltDB(path, conf.Store.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to open database %s: %w", path, err)
		}
		return store.NewBBoltStore(db), nil
	case config.StoreTypeFile:
		dir := conf.Store.Path
		if dir == "" {
			dir = defaultFileDir
		}
		return store.NewFileStore(dir)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", conf.Store.Type)
	}
}

func newApp(conf *config.Config) (*app, error) {
	builtin.RegisterAll()

	dnsResolver, err := resolver.New(conf.Resolver.Servers, conf.Resolver.Timeout, conf.Resolver.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	tunnelStore, err := newStore(conf)
	if err != nil {
		return nil, err
	}

	binDir, err := localBinaryDir(conf)
	if err != nil {
		_ = tunnelStore.Close()
		return nil, err
	}

	shell := newRootShell(conf, binDir)
	installer := newInstaller(conf, shell, binDir)
	selector := wireguard.NewSelector(wireguard.SelectorOptions{
		KernelModulePath: conf.Backend.KernelModulePath,
		ForceUserspace:   conf.Backend.ForceUserspace,
		Backend: driver.Options{
			Shell:     shell,
			Tools:     installer,
			Resolver:  dnsResolver,
			ConfigDir: conf.Backend.ConfigDir,
		},
	})

	return &app{
		shell:         shell,
		installer:     installer,
		selector:      selector,
		store:         tunnelStore,
		manageService: manage.NewService(tunnelStore, selector, installer),
	}, nil
}

// closeTunnels brings every running tunnel down and closes the backend.
func (a *app) closeTunnels(ctx context.Context) error {
	return a.manageService.Close(ctx)
}

// close releases the store and the root shell, leaving tunnels as they are.
func (a *app) close(ctx context.Context) error {
	var result *multierror.Error
	if err := a.selector.Close(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := a.store.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close store: %w", err))
	}
	if err := a.shell.Stop(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to stop root shell: %w", err))
	}
	return result.ErrorOrNil()
}
