// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The kocomstat Authors

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kocomstat/kocomstat/pkg/api"
	"github.com/kocomstat/kocomstat/pkg/sensor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the wallpad periodically and serve readings over HTTP",
	Long: `Poll the wallpad on the configured interval and serve the readings as JSON.

Endpoints:
  GET  /api/v1/usage          flat mapping of the last good reading
  GET  /api/v1/sensors        per-category sensor states
  GET  /api/v1/sensors/{key}  one sensor (energy, electricity, gas, ...)
  GET  /api/v1/status         poll statistics and the last error
  POST /api/v1/refresh        poll now

With --state-file the last good reading is restored at start and saved after
every successful poll.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	client, connInfo, err := newClient(cfg, nil)
	if err != nil {
		return err
	}

	poller := newPoller(cfg, client)
	if err := poller.Restore(); err != nil {
		logrus.WithError(err).Warn("Ignoring saved snapshot")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(poller, cfg.Listen, logrus.WithField("component", "api"))
	if err := server.Start(ctx); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"wallpad":  connInfo,
		"interval": cfg.Interval,
		"listen":   server.Addr(),
	}).Info("Serving wallpad readings")

	updates, unsubscribe := poller.Subscribe(16)
	defer unsubscribe()
	go logUpdates(updates)

	_ = poller.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

// logUpdates logs successful polls; failures are logged by the poller.
func logUpdates(updates <-chan sensor.Update) {
	for u := range updates {
		if u.Err != nil || !u.Fresh {
			continue
		}
		logrus.WithFields(logrus.Fields{
			"display": u.Snapshot.DisplayType,
			"took":    u.Took.Round(time.Millisecond),
			"site":    u.Snapshot.Address,
		}).Info("Reading updated")
	}
}
