// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors

package kocom

import (
	"encoding/hex"
	"net"
	"strconv"

	"github.com/pkg/errors"
)

// Credentials holds the wallpad address and the padded hex credential blobs
// embedded in the authentication request.
type Credentials struct {
	ip        string
	port      int
	username  string
	password  string
	pushToken string
	phone     string
}

// NewCredentials validates the blobs and returns Credentials for ip on the
// default port.
func NewCredentials(ip, username, password, pushToken, phone string) (Credentials, error) {
	if ip == "" {
		return Credentials{}, errors.New("missing wallpad address")
	}
	blobs := []struct {
		name  string
		value string
		width int
	}{
		{"username", username, UsernameWidth},
		{"password", password, PasswordWidth},
		{"push token", pushToken, PushTokenWidth},
		{"phone", phone, PhoneWidth},
	}
	for _, b := range blobs {
		if err := checkBlob(b.value, b.width); err != nil {
			return Credentials{}, errors.Wrapf(err, "invalid %s blob", b.name)
		}
	}
	return Credentials{
		ip:        ip,
		port:      DefaultPort,
		username:  username,
		password:  password,
		pushToken: pushToken,
		phone:     phone,
	}, nil
}

// WithPort returns a copy of c using port instead of the default.
func (c Credentials) WithPort(port int) Credentials {
	c.port = port
	return c
}

// IP returns the wallpad host.
func (c Credentials) IP() string {
	return c.ip
}

// Port returns the wallpad port.
func (c Credentials) Port() int {
	return c.port
}

// Address returns host:port.
func (c Credentials) Address() string {
	return net.JoinHostPort(c.ip, strconv.Itoa(c.port))
}

func checkBlob(value string, width int) error {
	if len(value) != width {
		return errors.Errorf("expected %d hex characters, got %d", width, len(value))
	}
	if _, err := hex.DecodeString(value); err != nil {
		return err
	}
	return nil
}

// SiteAddress holds the 4 hex digit town, dong and ho codes of the residence.
type SiteAddress struct {
	Town string
	Dong string
	Ho   string
}

// IsZero reports whether no address has been resolved.
func (a SiteAddress) IsZero() bool {
	return a.Town == "" && a.Dong == "" && a.Ho == ""
}

func (a SiteAddress) String() string {
	return a.Town + "/" + a.Dong + "/" + a.Ho
}
