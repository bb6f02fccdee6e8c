// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The kocomstat Authors

package cmd

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kocomstat/kocomstat/pkg/kocom"
	"github.com/kocomstat/kocomstat/pkg/sensor"
)

// Exit codes shared by every command
const (
	exitOK              = 0
	exitProtocolFailure = 1
	exitConnectionError = 2
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "kocomstat",
	Short: "Kocom wallpad energy usage client",
	Long: `Kocomstat - A CLI tool for reading monthly energy usage from a Kocom wallpad.

The wallpad is polled over TCP (port 15000 by default): authenticate, detect the
display layout, read the site address, then read electricity, gas, water, hot
water and heating usage.

Configuration is read from kocomstat.yaml in $HOME/.config/kocomstat or the
current directory (or --config), from KOCOM_* environment variables, and from
flags, in increasing order of precedence. Run "kocomstat login" once to look up
the wallpad address and store the credential hashes.

Connection modes:
  TCP:       --host 192.168.0.10 [--port 15000]
  WebSocket: --bridge-url ws://host/path [--bridge-username user]

For the bridge, the password is read from the KOCOM_BRIDGE_PASSWORD environment
variable, or prompted interactively if not set.

Exit codes:
  0 - Success
  1 - Protocol failure (rejected, timeout, malformed response)
  2 - Connection error`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "Config file (default $HOME/.config/kocomstat/kocomstat.yaml)")

	// Wallpad flags
	f.String("host", "", "Wallpad IP address or hostname")
	f.Int("port", kocom.DefaultPort, "Wallpad TCP port")
	f.String("protocol", kocom.ProtocolCurrent.String(), "Wallpad generation (current or legacy)")
	f.Duration("timeout", kocom.DefaultStepTimeout, "Timeout per protocol step")

	// Polling flags
	f.Duration("interval", sensor.DefaultInterval, "Polling interval (watch and serve)")
	f.String("state-file", "", "Snapshot file kept between runs")
	f.String("listen", ":8080", "HTTP API listen address (serve)")

	// WebSocket bridge flags
	f.String("bridge-url", "", "WebSocket bridge URL (ws:// or wss://)")
	f.String("bridge-username", "", "Username for HTTP Basic auth on the bridge")
	f.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	f.String("log-level", "info", "Log level (trace, debug, info, warn, error)")

	bindFlags(v, f)
}

// setupLogging configures the standard logger before any command runs.
func setupLogging(cmd *cobra.Command, args []string) error {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if err := readConfig(v, cfgFile); err != nil {
		return err
	}
	level, err := logrus.ParseLevel(v.GetString("log_level"))
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	return nil
}

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return kocom.FormatError(e.err) }
func (e *exitError) Unwrap() error { return e.err }

// withExitCode tags a client error with its exit code.
func withExitCode(err error) error {
	if err == nil {
		return nil
	}
	code := exitProtocolFailure
	if errors.Is(err, kocom.ErrConnectionFailed) {
		code = exitConnectionError
	}
	return &exitError{code: code, err: err}
}

// ExitCode returns the process exit code for an error returned by Execute.
func ExitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitProtocolFailure
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
