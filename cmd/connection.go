// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The kocomstat Authors

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/kocomstat/kocomstat/pkg/kocom"
)

// ErrConnectionClosed is returned when reading from a closed bridge connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// bridgeConn carries wallpad frames as binary WebSocket messages.
type bridgeConn struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool

	closeOnce sync.Once
	closeErr  error
}

func (b *bridgeConn) Read(p []byte) (int, error) {
	if b.closed {
		return 0, ErrConnectionClosed
	}

	// Drain the buffered message first
	if b.bufOffset < len(b.buf) {
		n := copy(p, b.buf[b.bufOffset:])
		b.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := b.conn.ReadMessage()
		if err != nil {
			b.closed = true
			return 0, err
		}

		// Text messages are bridge chatter, not wallpad data
		if messageType != websocket.BinaryMessage {
			continue
		}

		b.buf = data
		b.bufOffset = 0
		n := copy(p, b.buf)
		b.bufOffset = n
		return n, nil
	}
}

func (b *bridgeConn) Write(p []byte) (int, error) {
	if err := b.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (b *bridgeConn) SetDeadline(t time.Time) error {
	if err := b.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return b.conn.SetWriteDeadline(t)
}

func (b *bridgeConn) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.conn.Close()
	})
	return b.closeErr
}

// BridgeDialer reaches the wallpad through a WebSocket bridge that relays
// binary messages to a TCP target. The target host:port is passed in the
// "target" query parameter.
type BridgeDialer struct {
	URL              string
	Username         string
	Password         string
	SkipSSLVerify    bool
	HandshakeTimeout time.Duration
}

// DialContext opens a bridge connection relaying to address.
func (d *BridgeDialer) DialContext(ctx context.Context, address string) (kocom.Conn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid bridge URL")
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, errors.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	q := u.Query()
	q.Set("target", address)
	u.RawQuery = q.Encode()

	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: d.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if d.Username != "" && d.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(d.Username + ":" + d.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "bridge connection failed (HTTP %d)", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "bridge connection failed")
	}
	return &bridgeConn{conn: conn}, nil
}

// GetPassword reads a password from envVar, or prompts for it without echo.
func GetPassword(envVar, prompt string) (string, error) {
	if pw := os.Getenv(envVar); pw != "" {
		return pw, nil
	}

	fmt.Fprintf(os.Stderr, "%s: ", prompt)

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal, read a line instead
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", errors.Wrap(err, "failed to read password")
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// newDialer returns the transport selected by the config.
func newDialer(c *Config) (kocom.Dialer, string, error) {
	if c.BridgeURL == "" {
		return kocom.TCPDialer{Timeout: c.Timeout}, "TCP", nil
	}

	d := &BridgeDialer{
		URL:              c.BridgeURL,
		Username:         c.BridgeUser,
		SkipSSLVerify:    c.NoSSLVerify,
		HandshakeTimeout: c.Timeout,
	}
	if c.BridgeUser != "" {
		pw, err := GetPassword("KOCOM_BRIDGE_PASSWORD", "Bridge password")
		if err != nil {
			return nil, "", err
		}
		d.Password = pw
	}
	return d, fmt.Sprintf("WebSocket bridge %s", c.BridgeURL), nil
}

// newClient builds a wallpad client from the config. The returned string
// describes the connection for banners.
func newClient(c *Config, observer kocom.FrameObserver) (*kocom.Client, string, error) {
	creds, err := c.Credentials()
	if err != nil {
		return nil, "", err
	}
	dialer, transport, err := newDialer(c)
	if err != nil {
		return nil, "", err
	}
	client := kocom.NewClient(creds, kocom.Options{
		Dialer:      dialer,
		StepTimeout: c.Timeout,
		Protocol:    c.ProtocolValue(),
		Logger:      logrus.WithField("component", "kocom"),
		Observer:    observer,
	})
	info := fmt.Sprintf("%s via %s (%s protocol)", creds.Address(), transport, c.ProtocolValue())
	return client, info, nil
}
