// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors

package kocom

import "fmt"

// ErrorKind classifies a failed session.
type ErrorKind int

// Error kinds
const (
	KindConnectionFailed ErrorKind = iota + 1
	KindTimeout
	KindAuthRejected
	KindMalformedResponse
	KindMalformedField
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnectionFailed:
		return "CONNECTION_FAILED"
	case KindTimeout:
		return "TIMEOUT"
	case KindAuthRejected:
		return "AUTH_REJECTED"
	case KindMalformedResponse:
		return "MALFORMED_RESPONSE"
	case KindMalformedField:
		return "MALFORMED_FIELD"
	default:
		return "UNKNOWN"
	}
}

// ClientError is the only error type returned by Client operations.
type ClientError struct {
	Kind ErrorKind
	Step Step
	Err  error
}

// Sentinels for errors.Is. A sentinel without a step matches every step.
var (
	ErrConnectionFailed  = &ClientError{Kind: KindConnectionFailed}
	ErrTimeout           = &ClientError{Kind: KindTimeout}
	ErrAuthRejected      = &ClientError{Kind: KindAuthRejected}
	ErrMalformedResponse = &ClientError{Kind: KindMalformedResponse}
	ErrMalformedField    = &ClientError{Kind: KindMalformedField}
)

func (e *ClientError) Error() string {
	msg := e.Kind.String()
	if e.Step != StepNone {
		msg = fmt.Sprintf("%s (%s)", msg, e.Step)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind, and by step when the target names one.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Step == StepNone || t.Step == e.Step)
}

// TimeoutAt returns a sentinel matching a timeout at the given step.
func TimeoutAt(step Step) *ClientError {
	return &ClientError{Kind: KindTimeout, Step: step}
}

// FrameLengthError reports a request frame whose assembled length differs from
// its designed length.
type FrameLengthError struct {
	Frame string
	Want  int // bytes
	Got   int // hex characters
}

func (e *FrameLengthError) Error() string {
	return fmt.Sprintf("%s frame: assembled %d hex characters, want %d bytes", e.Frame, e.Got, e.Want)
}
