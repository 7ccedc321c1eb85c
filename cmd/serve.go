package cmd

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/UnAfraid/wgtunnel/pkg/api"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the remote control API until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGTERM, syscall.SIGINT)

	if _, err := maxprocs.Set(maxprocs.Logger(logrus.Printf)); err != nil {
		logrus.
			WithError(err).
			Error("failed to set maxprocs")
	}

	a, err := newApp(conf)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(context.Background()); err != nil {
			logrus.
				WithError(err).
				Error("failed to close")
		}
	}()

	if conf.Backend.RestoreState {
		restoreCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.manageService.RestoreState(restoreCtx); err != nil {
			logrus.
				WithError(err).
				Error("failed to restore tunnels")
		}
		cancel()
	}

	debugServer := &http.Server{
		Addr: conf.DebugServer.Address(),
	}

	if conf.DebugServer.Enabled {
		go func() {
			logrus.WithField("address", conf.DebugServer.Address()).Info("Starting serving debug server")
			if err := debugServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.
					WithError(err).
					Fatal("Failed to serve debug")
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              conf.HttpServer.Address(),
		Handler:           api.NewRouter(conf, a.manageService),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if conf.HttpServer.Enabled {
		go func() {
			logrus.WithField("address", conf.HttpServer.Address()).Info("Starting serving http server")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.
					WithError(err).
					Fatal("failed to listen and serve http server")
			}
		}()
	}

	<-shutdownChan
	logrus.Info("Shutting down")

	if conf.HttpServer.Enabled {
		logrus.Info("Shutting down http server")
		httpServerShutdownTimeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(httpServerShutdownTimeoutCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.
				WithError(err).
				Error("failed to shutdown http server")
		}
	}

	if conf.DebugServer.Enabled {
		logrus.Info("Shutting down debug http server")
		debugHttpServerShutdownTimeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := debugServer.Shutdown(debugHttpServerShutdownTimeoutCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.
				WithError(err).
				Error("failed to shutdown debug server")
		}
	}

	logrus.Info("Bringing tunnels down")
	tunnelsShutdownTimeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.manageService.SaveState(tunnelsShutdownTimeoutCtx); err != nil {
		logrus.
			WithError(err).
			Error("failed to save tunnel state")
	}
	return a.closeTunnels(tunnelsShutdownTimeoutCtx)
}
