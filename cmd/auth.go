// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The kocomstat Authors

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kocomstat/kocomstat/pkg/kocom"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Check the credentials with an authentication handshake",
	Long: `Connect to the wallpad, send the authentication request and compare the
reply with the expected acknowledgement. No usage data is requested.

Exit codes:
  0 - Credentials accepted
  1 - Credentials rejected or no reply in time
  2 - Connection error`,
	RunE: runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)
}

func runAuth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	client, connInfo, err := newClient(cfg, nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Authenticating with %s\n", connInfo)

	start := time.Now()
	if err := client.Authenticate(cmd.Context()); err != nil {
		fmt.Fprintf(out, "Result: FAILED (%s)\n", kocom.FormatError(err))
		return withExitCode(err)
	}
	fmt.Fprintf(out, "Result: PASSED (accepted in %v)\n", time.Since(start).Round(time.Millisecond))
	return nil
}
