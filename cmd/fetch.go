// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The kocomstat Authors

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kocomstat/kocomstat/pkg/kocom"
	"github.com/kocomstat/kocomstat/pkg/store"
)

var fetchJSON bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Poll the wallpad once and print the usage table",
	Long: `Run one full poll: authenticate, detect the display layout, read the site
address and the monthly usage, then print the result.

With --json the flat key/value mapping is printed instead of the table, with
keys such as gas_usage_this_month and the period labels (this_month, ...).

When --state-file is set the snapshot is also saved there, so that watch and
serve start with it.

Exit codes:
  0 - Success (including a wallpad with an unsupported display type)
  1 - Protocol failure
  2 - Connection error`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().BoolVar(&fetchJSON, "json", false, "Print the flat mapping as JSON")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	client, _, err := newClient(cfg, nil)
	if err != nil {
		return err
	}

	snap, err := client.FetchUsage(cmd.Context())
	if err != nil {
		return withExitCode(err)
	}

	if cfg.StateFile != "" {
		if err := store.NewFile(cfg.StateFile).Save(snap); err != nil {
			return err
		}
	}

	if fetchJSON {
		return writeSnapshotJSON(cmd.OutOrStdout(), snap)
	}
	fmt.Fprint(cmd.OutOrStdout(), kocom.FormatSnapshot(snap))
	return nil
}

// snapshotJSON is the flat mapping plus the snapshot metadata.
func snapshotJSON(snap *kocom.Snapshot) map[string]interface{} {
	m := snap.Map()
	m["display_type"] = snap.DisplayType.String()
	m["site"] = snap.Address.String()
	m["updated_at"] = snap.FetchedAt.Format(time.RFC3339)
	return m
}

func writeSnapshotJSON(w io.Writer, snap *kocom.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshotJSON(snap))
}
