// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors

package kocom

import (
	"context"
	"encoding/hex"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Conn is one transport connection to the wallpad.
type Conn interface {
	io.ReadWriteCloser
	SetDeadline(t time.Time) error
}

// Dialer opens transport connections.
type Dialer interface {
	DialContext(ctx context.Context, address string) (Conn, error)
}

// TCPDialer dials the wallpad directly.
type TCPDialer struct {
	Timeout time.Duration
}

// DialContext opens a TCP connection to address.
func (d TCPDialer) DialContext(ctx context.Context, address string) (Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	c, err := nd.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FrameObserver receives every frame exchanged with the wallpad.
type FrameObserver interface {
	ObserveFrame(step Step, sent bool, data []byte)
}

// Options configures a Client. The zero value is usable.
type Options struct {
	Dialer      Dialer
	StepTimeout time.Duration
	Protocol    Protocol
	Logger      logrus.FieldLogger
	Observer    FrameObserver
	Now         func() time.Time
}

// Client runs protocol operations against one wallpad. Every operation opens
// its own connection, so a Client may be shared between goroutines.
type Client struct {
	creds Credentials
	opts  Options
	log   logrus.FieldLogger
}

// NewClient returns a client for creds.
func NewClient(creds Credentials, opts Options) *Client {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = DefaultStepTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = TCPDialer{Timeout: opts.StepTimeout}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger().WithField("component", "kocom")
	}
	return &Client{
		creds: creds,
		opts:  opts,
		log:   log.WithField("wallpad", creds.Address()),
	}
}

// FetchUsage polls the wallpad once with default options.
func FetchUsage(ctx context.Context, creds Credentials) (*Snapshot, error) {
	return NewClient(creds, Options{}).FetchUsage(ctx)
}

// Authenticate connects, runs the authentication exchange and disconnects.
func (c *Client) Authenticate(ctx context.Context) error {
	s, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()
	return s.authenticate(ctx, c.creds)
}

// FetchUsage runs a full poll: authenticate, query the display type (current
// protocol only), query the site address, then query and decode the energy
// usage. The connection is closed on every exit path.
//
// An unknown display type is not an error: the returned snapshot carries the
// address and no readings.
func (c *Client) FetchUsage(ctx context.Context) (*Snapshot, error) {
	s, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer s.close()

	if err := s.authenticate(ctx, c.creds); err != nil {
		return nil, err
	}

	display := DisplayLayout1
	if c.opts.Protocol == ProtocolCurrent {
		if display, err = s.queryMenu(ctx); err != nil {
			return nil, err
		}
	}

	addr, err := s.queryAddress(ctx)
	if err != nil {
		return nil, err
	}

	now := c.opts.Now()
	snap := &Snapshot{
		Address:     addr,
		DisplayType: display,
		Labels:      map[Period]string{},
		FetchedAt:   now,
	}
	if display == DisplayUnknown {
		s.log.Warn("Unknown display type, skipping energy query")
		return snap, nil
	}

	usage, err := s.queryEnergy(ctx, display, addr, now)
	if err != nil {
		return nil, err
	}
	snap.Labels = usage.Labels
	snap.Readings = usage.Readings
	return snap, nil
}

func (c *Client) open(ctx context.Context) (*session, error) {
	if c.creds.ip == "" {
		return nil, &ClientError{Kind: KindConnectionFailed, Step: StepConnect, Err: errors.New("missing wallpad address")}
	}
	c.log.Debug("Connecting")
	conn, err := c.opts.Dialer.DialContext(ctx, c.creds.Address())
	if err != nil {
		if ctx.Err() != nil {
			return nil, &ClientError{Kind: KindTimeout, Step: StepConnect, Err: ctx.Err()}
		}
		return nil, &ClientError{Kind: KindConnectionFailed, Step: StepConnect, Err: err}
	}
	s := &session{
		conn:     conn,
		timeout:  c.opts.StepTimeout,
		observer: c.opts.Observer,
		log:      c.log,
	}
	// Cancellation unblocks a pending read or write.
	s.stopCancel = context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	s.transition(StateConnected)
	return s, nil
}

// session is the state of one connection. It is never shared.
type session struct {
	conn       Conn
	state      State
	timeout    time.Duration
	observer   FrameObserver
	log        logrus.FieldLogger
	stopCancel func() bool
}

func (s *session) transition(next State) {
	s.log.WithFields(logrus.Fields{
		"from": s.state,
		"to":   next,
	}).Debug("Session state")
	s.state = next
}

func (s *session) close() {
	if s.stopCancel != nil {
		s.stopCancel()
	}
	if err := s.conn.Close(); err != nil {
		s.log.WithError(err).Debug("Close failed")
	}
	s.transition(StateDisconnected)
}

// exchange writes one request and reads one response of at most
// readBufferSize bytes, both bounded by the step timeout.
func (s *session) exchange(ctx context.Context, step Step, f Frame) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &ClientError{Kind: KindTimeout, Step: step, Err: err}
	}
	req, err := f.Bytes()
	if err != nil {
		return "", &ClientError{Kind: KindMalformedField, Step: step, Err: errors.Wrapf(err, "%s frame", f.Name)}
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		return "", s.classify(ctx, step, err)
	}
	// The cancel hook may have fired before the deadline was replaced.
	if err := ctx.Err(); err != nil {
		return "", &ClientError{Kind: KindTimeout, Step: step, Err: err}
	}

	log := s.log.WithField("step", step)
	log.WithField("frame", f.Hex).Debug("Request")
	s.observe(step, true, req)
	if _, err := s.conn.Write(req); err != nil {
		return "", s.classify(ctx, step, err)
	}

	buf := make([]byte, readBufferSize)
	n, err := s.conn.Read(buf)
	if n == 0 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return "", s.classify(ctx, step, err)
	}
	s.observe(step, false, buf[:n])
	resp := hex.EncodeToString(buf[:n])
	log.WithField("frame", resp).Debug("Response")
	return resp, nil
}

func (s *session) observe(step Step, sent bool, data []byte) {
	if s.observer != nil {
		s.observer.ObserveFrame(step, sent, data)
	}
}

// classify maps a transport error to a ClientError.
func (s *session) classify(ctx context.Context, step Step, err error) *ClientError {
	if ctx.Err() != nil {
		return &ClientError{Kind: KindTimeout, Step: step, Err: ctx.Err()}
	}
	var ne net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &ClientError{Kind: KindTimeout, Step: step, Err: err}
	}
	return &ClientError{Kind: KindConnectionFailed, Step: step, Err: err}
}

func (s *session) authenticate(ctx context.Context, creds Credentials) error {
	req, err := BuildAuthRequest(creds)
	if err != nil {
		return &ClientError{Kind: KindMalformedField, Step: StepAuth, Err: err}
	}
	resp, err := s.exchange(ctx, StepAuth, req)
	if err != nil {
		return err
	}
	if resp != authResponseChecker {
		return &ClientError{Kind: KindAuthRejected, Step: StepAuth, Err: errors.Errorf("unexpected response %s", resp)}
	}
	s.transition(StateAuthenticated)
	return nil
}

func (s *session) queryMenu(ctx context.Context) (DisplayType, error) {
	resp, err := s.exchange(ctx, StepMenu, MenuRequest())
	if err != nil {
		return DisplayUnknown, err
	}
	display, code := ParseMenu(resp)
	s.log.WithFields(logrus.Fields{
		"code":    code,
		"display": display,
	}).Debug("Display type")
	s.transition(StateMenuKnown)
	return display, nil
}

func (s *session) queryAddress(ctx context.Context) (SiteAddress, error) {
	resp, err := s.exchange(ctx, StepAddress, AddressRequest())
	if err != nil {
		return SiteAddress{}, err
	}
	addr, err := ParseAddress(resp)
	if err != nil {
		return SiteAddress{}, &ClientError{Kind: KindMalformedResponse, Step: StepAddress, Err: err}
	}
	s.log.WithField("address", addr).Debug("Site address")
	s.transition(StateAddressKnown)
	return addr, nil
}

func (s *session) queryEnergy(ctx context.Context, display DisplayType, addr SiteAddress, now time.Time) (*Usage, error) {
	req, err := BuildEnergyRequest(display, addr, now)
	if err != nil {
		return nil, &ClientError{Kind: KindMalformedField, Step: StepEnergy, Err: err}
	}
	resp, err := s.exchange(ctx, StepEnergy, req)
	if err != nil {
		return nil, err
	}
	if err := validateEnergyResponse(resp, display); err != nil {
		return nil, &ClientError{Kind: KindMalformedResponse, Step: StepEnergy, Err: err}
	}
	usage, err := DecodeEnergy(resp, display)
	if err != nil {
		return nil, &ClientError{Kind: KindMalformedField, Step: StepEnergy, Err: err}
	}
	s.transition(StateEnergyReceived)
	return usage, nil
}

// validateEnergyResponse rejects error frames and responses too short for the
// layout.
func validateEnergyResponse(resp string, display DisplayType) error {
	if strings.HasPrefix(resp, errorHeaderPrefix) {
		return errors.Errorf("wallpad returned error frame %s", resp)
	}
	layout, _ := LayoutFor(display)
	if got, want := len(resp)/2, layout.MinLength(); got < want {
		return errors.Errorf("energy response is %d bytes, want at least %d", got, want)
	}
	return nil
}
