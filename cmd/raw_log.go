// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The kocomstat Authors

package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/kocomstat/kocomstat/pkg/kocom"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Poll once and display every frame exchanged",
	Long: `Run one full poll and print each request and response frame as it is
exchanged, with timestamp, protocol step, direction and a hex dump, followed
by the decoded usage table.

Useful for diagnosing an unsupported wallpad or a layout change. The
authentication request contains the credential hashes.

Exit codes:
  0 - Poll completed
  1 - Protocol failure
  2 - Connection error`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

// frameLogger prints frames as they cross the connection.
type frameLogger struct {
	mu     sync.Mutex
	w      io.Writer
	now    func() time.Time
	frames int
	bytes  int
}

func (l *frameLogger) ObserveFrame(step kocom.Step, sent bool, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	dir := "<<"
	if sent {
		dir = ">>"
	}
	fmt.Fprintf(l.w, "[%s] %s %s (%d bytes)\n", l.now().Format("15:04:05.000"), dir, step, len(data))
	fmt.Fprint(l.w, kocom.FormatHexDump(data))
	fmt.Fprintln(l.w)
	l.frames++
	l.bytes += len(data)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	observer := &frameLogger{w: out, now: time.Now}
	client, connInfo, err := newClient(cfg, observer)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Kocomstat - Raw Frame Log\n")
	fmt.Fprintf(out, "Connection: %s\n\n", connInfo)

	snap, err := client.FetchUsage(cmd.Context())
	fmt.Fprintf(out, "--- %d frames, %d bytes ---\n", observer.frames, observer.bytes)
	if err != nil {
		fmt.Fprintf(out, "[ERROR] %s\n", kocom.FormatError(err))
		return withExitCode(err)
	}
	fmt.Fprint(out, kocom.FormatSnapshot(snap))
	return nil
}
