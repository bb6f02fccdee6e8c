// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The kocomstat Authors

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kocomstat/kocomstat/pkg/kocom"
	"github.com/kocomstat/kocomstat/pkg/sensor"
	"github.com/kocomstat/kocomstat/pkg/store"
)

var (
	showAll       bool
	useTUI        bool
	statsInterval int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the wallpad periodically and show usage and errors",
	Long: `Poll the wallpad on the configured interval and track the outcome of every
poll with statistics.

Each poll is checked for:
  - Connection failures and timeouts (per protocol step)
  - Rejected credentials and malformed responses
  - Stale duplicates (this month equals last month while the label has not moved)
  - Invalid values (negative, NaN or infinite usage)

A failed poll is retried with exponential backoff starting at one minute. The
last good reading stays on screen until a new one arrives.

By default only problems are logged. Use --show-all to log every poll.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&showAll, "show-all", false, "Log every poll (not just problems)")
	watchCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
	watchCmd.Flags().IntVar(&statsInterval, "stats-interval", 0, "Print statistics every N polls in text mode (0 disables)")
}

// newPoller builds the poller shared by watch and serve.
func newPoller(cfg *Config, f sensor.Fetcher) *sensor.Poller {
	pc := sensor.Config{
		Interval: cfg.Interval,
		Logger:   logrus.WithField("component", "poller"),
	}
	if cfg.StateFile != "" {
		pc.Store = store.NewFile(cfg.StateFile)
	}
	return sensor.NewPoller(f, pc)
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	updates, unsubscribe := poller.Subscribe(16)
	defer unsubscribe()

	if useTUI {
		// Poll results are shown in the event log instead
		logrus.SetOutput(io.Discard)
		defer logrus.SetOutput(os.Stderr)
	}
	go func() {
		_ = poller.Run(ctx)
	}()

	if useTUI {
		return runTUIMode(ctx, poller, updates, connInfo, cfg.Interval)
	}
	return runTextMode(ctx, cmd.OutOrStdout(), poller, updates, connInfo, cfg.Interval)
}

func runTUIMode(ctx context.Context, source dashboardSource, updates <-chan sensor.Update, connInfo string, interval time.Duration) error {
	m := initialModel(ctx, source, updates, connInfo, interval, showAll)
	p := tea.NewProgram(m, tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func runTextMode(ctx context.Context, out io.Writer, source dashboardSource, updates <-chan sensor.Update, connInfo string, interval time.Duration) error {
	fmt.Fprintf(out, "Kocomstat - Watch Mode\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Interval: %s\n", interval)
	if showAll {
		fmt.Fprintf(out, "Mode: All polls\n")
	} else {
		fmt.Fprintf(out, "Mode: Problems only\n")
	}
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	polls := 0
	for {
		select {
		case <-ctx.Done():
			stats := source.Stats()
			fmt.Fprintf(out, "\n%s", stats.String())
			return nil

		case u, ok := <-updates:
			if !ok {
				return nil
			}
			polls++
			printUpdate(out, u, showAll)
			if statsInterval > 0 && polls%statsInterval == 0 {
				stats := source.Stats()
				fmt.Fprint(out, stats.String())
				fmt.Fprintln(out)
			}
		}
	}
}

// printUpdate prints one poll outcome in text mode.
func printUpdate(out io.Writer, u sensor.Update, all bool) {
	timestamp := u.At.Format("15:04:05.000")

	if u.Err != nil {
		fmt.Fprintf(out, "[%s] \033[1;31mPOLL FAILED:\033[0m %s\n", timestamp, kocom.FormatError(u.Err))
		if u.Snapshot != nil {
			fmt.Fprintf(out, "  last good reading from %s\n", u.Snapshot.FetchedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintln(out)
		return
	}

	for _, a := range u.Anomalies {
		fmt.Fprintf(out, "[%s] \033[1;33mANOMALY:\033[0m %s\n", timestamp, kocom.FormatAnomaly(a))
	}
	if u.Snapshot.Degraded() {
		fmt.Fprintf(out, "[%s] \033[1;33mNO USAGE DATA:\033[0m display type %s\n", timestamp, u.Snapshot.DisplayType)
	}
	if all || len(u.Anomalies) > 0 {
		fmt.Fprintf(out, "[%s] poll ok in %s\n", timestamp, u.Took.Round(time.Millisecond))
		fmt.Fprint(out, kocom.FormatSnapshot(u.Snapshot))
		fmt.Fprintln(out)
	}
}
