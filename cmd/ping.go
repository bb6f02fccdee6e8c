// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The kocomstat Authors

package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kocomstat/kocomstat/pkg/kocom"
)

var (
	pingCount int
	pingDelay time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure wallpad round trips with repeated authentication handshakes",
	Long: `Open a connection and authenticate several times in a row, reporting the
round trip time of each handshake.

This is useful for verifying:
  - The wallpad (or bridge) accepts connections
  - The credentials are accepted
  - Replies arrive within the step timeout

Exit codes:
  0 - All handshakes successful
  1 - One or more handshakes failed or timed out
  2 - Every handshake failed to connect`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of handshakes")
	pingCmd.Flags().DurationVar(&pingDelay, "delay", time.Second, "Delay between handshakes")
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	client, connInfo, err := newClient(cfg, nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Kocomstat - Handshake Ping\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Count: %d handshakes\n\n", pingCount)

	return pingLoop(out, pingCount, pingDelay, func() error {
		return client.Authenticate(cmd.Context())
	})
}

// pingLoop runs auth count times and prints a summary in the manner of ping.
func pingLoop(out io.Writer, count int, delay time.Duration, auth func() error) error {
	if count < 1 {
		return errors.New("--count must be at least 1")
	}
	var successCount, connFailCount int
	var lastErr error
	var total time.Duration

	for i := 1; i <= count; i++ {
		fmt.Fprintf(out, "Handshake %d/%d: ", i, count)

		start := time.Now()
		err := auth()
		rtt := time.Since(start)
		if err != nil {
			fmt.Fprintf(out, "FAILED (%s)\n", kocom.FormatError(err))
			lastErr = err
			if errors.Is(err, kocom.ErrConnectionFailed) {
				connFailCount++
			}
		} else {
			fmt.Fprintf(out, "accepted, rtt=%v\n", rtt.Round(time.Millisecond))
			successCount++
			total += rtt
		}

		if i < count && delay > 0 {
			time.Sleep(delay)
		}
	}

	failCount := count - successCount
	fmt.Fprintf(out, "\n--- Handshake statistics ---\n")
	fmt.Fprintf(out, "%d handshakes, %d accepted, %.0f%% failed\n",
		count, successCount, float64(failCount)/float64(count)*100)
	if successCount > 0 {
		fmt.Fprintf(out, "avg rtt=%v\n", (total / time.Duration(successCount)).Round(time.Millisecond))
	}

	if failCount == 0 {
		return nil
	}
	if connFailCount == count {
		return &exitError{code: exitConnectionError, err: lastErr}
	}
	return &exitError{code: exitProtocolFailure, err: lastErr}
}
