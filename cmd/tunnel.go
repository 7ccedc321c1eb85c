package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/UnAfraid/wgtunnel/pkg/manage"
	"github.com/UnAfraid/wgtunnel/pkg/wgconf"
	"github.com/UnAfraid/wgtunnel/pkg/wireguard/driver"
)

var (
	importFile string
	exportFile string
)

const defaultExportFile = "wgtunnel-export.zip"

var upCmd = &cobra.Command{
	Use:   "up <name>",
	Short: "Bring a stored tunnel up. Userspace tunnels stay up until interrupted.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTunnelState(cmd.Context(), args[0], driver.StateUp)
	},
}

var downCmd = &cobra.Command{
	Use:   "down <name>",
	Short: "Bring a stored tunnel down.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTunnelState(cmd.Context(), args[0], driver.StateDown)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <name>",
	Short: "Store a tunnel from a configuration file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(importFile)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", importFile, err)
		}
		defer f.Close()

		config, err := wgconf.Parse(f)
		if err != nil {
			return err
		}

		a, err := newApp(conf)
		if err != nil {
			return err
		}
		defer closeApp(a)

		_, err = a.manageService.Create(cmd.Context(), args[0], config)
		return err
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored tunnels with their state.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(conf)
		if err != nil {
			return err
		}
		defer closeApp(a)

		tunnels, err := a.manageService.Tunnels(cmd.Context())
		if err != nil {
			return err
		}
		for _, tunnel := range tunnels {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", tunnel.Name, tunnel.State); err != nil {
				return err
			}
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every stored tunnel into a zip archive.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(conf)
		if err != nil {
			return err
		}
		defer closeApp(a)

		if err := exportTunnels(cmd.Context(), a.manageService, exportFile); err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), exportFile)
		return err
	},
}

// exportTunnels writes the archive to path, removing it again if the export
// fails.
func exportTunnels(ctx context.Context, manageService manage.Service, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	err = manageService.Export(ctx, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close %s: %w", path, closeErr)
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

func init() {
	exportCmd.Flags().StringVarP(&exportFile, "output", "o", defaultExportFile, "archive to write")
	rootCmd.AddCommand(exportCmd)

	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "configuration file to import")
	_ = importCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(listCmd)
}

func closeApp(a *app) {
	if err := a.close(context.Background()); err != nil {
		logrus.
			WithError(err).
			Error("failed to close")
	}
}

func setTunnelState(ctx context.Context, name string, state driver.State) error {
	a, err := newApp(conf)
	if err != nil {
		return err
	}
	defer closeApp(a)

	result, err := a.manageService.SetState(ctx, name, state)
	if err != nil {
		return err
	}

	logrus.
		WithField("name", name).
		WithField("state", result.String()).
		Info("tunnel state set")

	b, err := a.selector.Backend(ctx)
	if err != nil {
		return err
	}
	if result != driver.StateUp || b.Kind() != driver.KindUserspace {
		return nil
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGTERM, syscall.SIGINT)

	logrus.WithField("name", name).Info("userspace tunnel running, interrupt to bring it down")
	<-shutdownChan

	_, err = a.manageService.SetState(context.Background(), name, driver.StateDown)
	return err
}
