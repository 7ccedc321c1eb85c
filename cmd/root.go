package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/UnAfraid/wgtunnel/pkg/config"
)

const (
	appName = "wgtunnel"
)

var conf *config.Config

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "Manage WireGuard tunnels with the kernel module or wireguard-go.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		conf, err = config.Load(appName)
		if err != nil {
			return err
		}

		level, err := logrus.ParseLevel(conf.LogLevel)
		if err != nil {
			return fmt.Errorf("failed to parse log level: %w", err)
		}
		logrus.SetLevel(level)
		return nil
	},
}

// Execute runs the root command and exits with a non-zero code on failure.
func Execute() {
	logrus.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339,
	})

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logrus.
			WithError(err).
			Error("command failed")
		os.Exit(1)
	}
}
