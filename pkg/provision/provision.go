// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors

// Package provision resolves the wallpad address of an account and builds the
// credential blobs the wallpad expects.
package provision

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/kocomstat/kocomstat/pkg/kocom"
)

// DefaultBaseURL is the Kocom server info service.
const DefaultBaseURL = "http://221.141.3.28"

// DefaultTimeout bounds one lookup request.
const DefaultTimeout = 10 * time.Second

// maxResponseSize caps the lookup response read
const maxResponseSize = 64 << 10

// ErrIPNotFound is returned when the lookup response names no wallpad address.
var ErrIPNotFound = errors.New("wallpad IP address not found in server response")

var ipPattern = regexp.MustCompile(`3 => ([\d\.]+)`)

// LookupIP asks the server info service at baseURL for the wallpad address of
// account uid. A nil client uses http.DefaultClient.
func LookupIP(ctx context.Context, client *http.Client, baseURL, uid string) (string, error) {
	if uid == "" {
		return "", errors.New("missing account id")
	}
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	u := strings.TrimRight(baseURL, "/") + "/SvrInfo.php?" + url.Values{"uid": {uid}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", errors.Wrap(err, "build lookup request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "server info lookup")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("server info lookup: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", errors.Wrap(err, "read lookup response")
	}
	return ParseServerInfo(string(body))
}

// ParseServerInfo extracts the wallpad address from a server info response.
func ParseServerInfo(body string) (string, error) {
	m := ipPattern.FindStringSubmatch(body)
	if m == nil {
		return "", ErrIPNotFound
	}
	return m[1], nil
}

// Blobs holds the padded hex credential blobs stored in the config file.
type Blobs struct {
	Username  string
	Password  string
	PushToken string
	Phone     string
}

// NewBlobs hashes username and password and pads every blob to its wire
// width. Push token and phone are sent empty.
func NewBlobs(username, password string) (Blobs, error) {
	if username == "" || password == "" {
		return Blobs{}, errors.New("username and password are required")
	}
	var b Blobs
	var err error
	if b.Username, err = kocom.PaddedHex(kocom.MD5Hex(username), kocom.UsernameWidth); err != nil {
		return Blobs{}, errors.Wrap(err, "username")
	}
	if b.Password, err = kocom.PaddedHex(kocom.MD5Hex(password), kocom.PasswordWidth); err != nil {
		return Blobs{}, errors.Wrap(err, "password")
	}
	if b.PushToken, err = kocom.PaddedHex("", kocom.PushTokenWidth); err != nil {
		return Blobs{}, errors.Wrap(err, "push token")
	}
	if b.Phone, err = kocom.PaddedHex("", kocom.PhoneWidth); err != nil {
		return Blobs{}, errors.Wrap(err, "phone")
	}
	return b, nil
}

// NewCredentials builds wallpad credentials for ip from a plain username and
// password.
func NewCredentials(ip, username, password string) (kocom.Credentials, error) {
	b, err := NewBlobs(username, password)
	if err != nil {
		return kocom.Credentials{}, err
	}
	return kocom.NewCredentials(ip, b.Username, b.Password, b.PushToken, b.Phone)
}
