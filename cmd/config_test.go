// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The kocomstat Authors

package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kocomstat/kocomstat/pkg/kocom"
	"github.com/kocomstat/kocomstat/pkg/provision"
)

var (
	testUserHash = strings.Repeat("ab", 40)
	testPassHash = strings.Repeat("CD", 40)
)

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kocomstat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func loadTestViper(t *testing.T, path string) *viper.Viper {
	t.Helper()
	w := viper.New()
	require.NoError(t, readConfig(w, path))
	return w
}

func validConfigYAML() string {
	return "host: 192.168.0.10\n" +
		"username_hash: " + testUserHash + "\n" +
		"password_hash: " + testPassHash + "\n"
}

func TestLoadConfig_Defaults(t *testing.T) {
	w := loadTestViper(t, writeTestConfig(t, validConfigYAML()))

	cfg, err := loadConfig(w)
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.10", cfg.Host)
	assert.Equal(t, kocom.DefaultPort, cfg.Port)
	assert.Equal(t, kocom.DefaultStepTimeout, cfg.Timeout)
	assert.Equal(t, time.Hour, cfg.Interval)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, kocom.ProtocolCurrent, cfg.ProtocolValue())
	assert.Equal(t, strings.ToLower(testPassHash), cfg.PasswordHash)
	assert.Equal(t, strings.Repeat("0", kocom.PushTokenWidth), cfg.PushToken)

	creds, err := cfg.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.10:15000", creds.Address())
}

func TestLoadConfig_FileValues(t *testing.T) {
	body := validConfigYAML() +
		"port: 16000\n" +
		"protocol: legacy\n" +
		"timeout: 3s\n" +
		"interval: 5m\n" +
		"bridge_url: ws://bridge.local/relay\n"
	w := loadTestViper(t, writeTestConfig(t, body))

	cfg, err := loadConfig(w)
	require.NoError(t, err)
	assert.Equal(t, 16000, cfg.Port)
	assert.Equal(t, kocom.ProtocolLegacy, cfg.ProtocolValue())
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Interval)
	assert.Equal(t, "ws://bridge.local/relay", cfg.BridgeURL)

	creds, err := cfg.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.10:16000", creds.Address())
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	t.Setenv("KOCOM_PORT", "17000")
	t.Setenv("KOCOM_LOG_LEVEL", "debug")
	w := loadTestViper(t, writeTestConfig(t, validConfigYAML()))

	cfg, err := loadConfig(w)
	require.NoError(t, err)
	assert.Equal(t, 17000, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_EnvOnly(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KOCOM_ACCOUNT", "user@example")
	t.Setenv("KOCOM_HOST", "10.1.2.3")
	t.Setenv("KOCOM_USERNAME_HASH", testUserHash)
	t.Setenv("KOCOM_PASSWORD_HASH", testPassHash)
	t.Setenv("KOCOM_STATE_FILE", "/var/lib/kocomstat/snapshot.cbor")

	w := viper.New()
	require.NoError(t, readConfig(w, ""))

	cfg, err := loadConfig(w)
	require.NoError(t, err)
	assert.Equal(t, "user@example", cfg.Account)
	assert.Equal(t, "10.1.2.3", cfg.Host)
	assert.Equal(t, testUserHash, cfg.UsernameHash)
	assert.Equal(t, strings.ToLower(testPassHash), cfg.PasswordHash)
	assert.Equal(t, "/var/lib/kocomstat/snapshot.cbor", cfg.StateFile)
	assert.Equal(t, kocom.DefaultPort, cfg.Port)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing host", "username_hash: " + testUserHash + "\npassword_hash: " + testPassHash + "\n", "Host fails required"},
		{"short username", "host: 10.0.0.1\nusername_hash: abcd\npassword_hash: " + testPassHash + "\n", "UsernameHash fails len"},
		{"non-hex password", "host: 10.0.0.1\nusername_hash: " + testUserHash + "\npassword_hash: " + strings.Repeat("zz", 40) + "\n", "PasswordHash fails hexadecimal"},
		{"port range", validConfigYAML() + "port: 70000\n", "Port fails max"},
		{"interval too short", validConfigYAML() + "interval: 30s\n", "Interval fails min"},
		{"unknown protocol", validConfigYAML() + "protocol: v3\n", "Protocol fails oneof"},
		{"unknown log level", validConfigYAML() + "log_level: verbose\n", "LogLevel fails oneof"},
		{"bad bridge url", validConfigYAML() + "bridge_url: not a url\n", "BridgeURL fails url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := loadTestViper(t, writeTestConfig(t, tt.body))
			_, err := loadConfig(w)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
			assert.Contains(t, err.Error(), "kocomstat login")
		})
	}
}

func TestLoadConfig_ExceptCredentials(t *testing.T) {
	w := loadTestViper(t, writeTestConfig(t, "interval: 5m\n"))

	_, err := loadConfig(w)
	require.Error(t, err)

	cfg, err := loadConfig(w, credentialFields...)
	require.NoError(t, err)
	assert.Empty(t, cfg.Host)
	assert.Equal(t, 5*time.Minute, cfg.Interval)
}

func TestReadConfig_Missing(t *testing.T) {
	err := readConfig(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	// Without an explicit file a missing config is fine
	t.Setenv("HOME", t.TempDir())
	assert.NoError(t, readConfig(viper.New(), ""))
}

func TestWriteConfig_RoundTrip(t *testing.T) {
	blobs, err := provision.NewBlobs("user@example", "password")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "kocomstat.yaml")
	want := &Config{
		Account:      "user@example",
		Host:         "10.1.2.3",
		Port:         15000,
		UsernameHash: blobs.Username,
		PasswordHash: blobs.Password,
		PushToken:    blobs.PushToken,
		Phone:        blobs.Phone,
		Protocol:     "legacy",
		Timeout:      5 * time.Second,
		Interval:     24 * time.Hour,
	}
	require.NoError(t, writeConfig(want, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := loadConfig(loadTestViper(t, path))
	require.NoError(t, err)
	assert.Equal(t, want.Account, got.Account)
	assert.Equal(t, want.Host, got.Host)
	assert.Equal(t, want.UsernameHash, got.UsernameHash)
	assert.Equal(t, want.PasswordHash, got.PasswordHash)
	assert.Equal(t, want.PushToken, got.PushToken)
	assert.Equal(t, want.Phone, got.Phone)
	assert.Equal(t, want.Timeout, got.Timeout)
	assert.Equal(t, want.Interval, got.Interval)
	assert.Equal(t, kocom.ProtocolLegacy, got.ProtocolValue())
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, ExitCode(nil))
	assert.Equal(t, exitProtocolFailure, ExitCode(errors.New("invalid config")))

	connErr := &kocom.ClientError{Kind: kocom.KindConnectionFailed, Step: kocom.StepConnect, Err: errors.New("refused")}
	assert.Equal(t, exitConnectionError, ExitCode(withExitCode(connErr)))

	authErr := &kocom.ClientError{Kind: kocom.KindAuthRejected, Step: kocom.StepAuth}
	wrapped := withExitCode(authErr)
	assert.Equal(t, exitProtocolFailure, ExitCode(wrapped))
	assert.Equal(t, "authentication rejected (check credentials)", wrapped.Error())
	assert.ErrorIs(t, wrapped, kocom.ErrAuthRejected)

	assert.NoError(t, withExitCode(nil))
}
