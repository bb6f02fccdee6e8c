// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The kocomstat Authors

package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kocomstat/kocomstat/pkg/provision"
)

var (
	loginAccount   string
	loginLookupURL string
	loginNoVerify  bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Look up the wallpad and store the account credentials",
	Long: `Provision the config file for an account of the Kocom app.

The wallpad address is looked up on the Kocom server info service unless
--host is given. The username and password are hashed into the credential
blobs the wallpad expects, checked with an authentication handshake, and
written to the config file (--config, or
$HOME/.config/kocomstat/kocomstat.yaml). The plain password is never stored.

The password is read from the KOCOM_PASSWORD environment variable, or
prompted interactively if not set.

Exit codes:
  0 - Credentials stored
  1 - Lookup failed or credentials rejected
  2 - Connection error`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVar(&loginAccount, "account", "", "Kocom app account id (required)")
	loginCmd.Flags().StringVar(&loginLookupURL, "lookup-url", provision.DefaultBaseURL, "Server info service base URL")
	loginCmd.Flags().BoolVar(&loginNoVerify, "no-verify", false, "Store the credentials without the authentication check")
	_ = loginCmd.MarkFlagRequired("account")
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(v, credentialFields...)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	if cfg.Host == "" {
		client := &http.Client{Timeout: provision.DefaultTimeout}
		ip, err := provision.LookupIP(ctx, client, loginLookupURL, loginAccount)
		if err != nil {
			return errors.Wrap(err, "wallpad lookup")
		}
		fmt.Fprintf(out, "Wallpad address: %s\n", ip)
		cfg.Host = ip
	}

	password, err := GetPassword("KOCOM_PASSWORD", "Kocom password")
	if err != nil {
		return err
	}
	blobs, err := provision.NewBlobs(loginAccount, password)
	if err != nil {
		return err
	}
	cfg.Account = loginAccount
	cfg.UsernameHash = blobs.Username
	cfg.PasswordHash = blobs.Password
	cfg.PushToken = blobs.PushToken
	cfg.Phone = blobs.Phone

	if !loginNoVerify {
		client, connInfo, err := newClient(cfg, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Authenticating with %s\n", connInfo)
		if err := client.Authenticate(ctx); err != nil {
			return withExitCode(err)
		}
	}

	path := cfgFile
	if path == "" {
		path = filepath.Join(configDir(), configName+"."+configType)
	}
	if err := writeConfig(cfg, path); err != nil {
		return err
	}
	logrus.WithField("path", path).Debug("Config written")
	fmt.Fprintf(out, "Credentials for %s stored in %s\n", loginAccount, path)
	return nil
}

// writeConfig stores the wallpad settings of c at path, readable by the
// owner only.
func writeConfig(c *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "create config directory")
	}

	w := viper.New()
	w.Set("account", c.Account)
	w.Set("host", c.Host)
	w.Set("port", c.Port)
	w.Set("username_hash", c.UsernameHash)
	w.Set("password_hash", c.PasswordHash)
	w.Set("push_token", c.PushToken)
	w.Set("phone", c.Phone)
	w.Set("protocol", c.Protocol)
	w.Set("timeout", c.Timeout.String())
	w.Set("interval", c.Interval.String())
	if c.StateFile != "" {
		w.Set("state_file", c.StateFile)
	}
	if c.BridgeURL != "" {
		w.Set("bridge_url", c.BridgeURL)
		w.Set("bridge_username", c.BridgeUser)
	}

	w.SetConfigType(configType)
	if err := w.WriteConfigAs(path); err != nil {
		return errors.Wrap(err, "write config")
	}
	return os.Chmod(path, 0o600)
}
