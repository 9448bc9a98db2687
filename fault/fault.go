// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package fault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// A Kind is the failure classification of an error surfaced by any of
// the relay transports, as reported by function Classify.
//
// Every failure handed to a caller carries exactly one Kind, plus
// enough context (HTTP status, close code, underlying cause) for the
// caller or a retry policy to decide whether the operation is worth
// repeating.
type Kind int

const (
	// Timeout indicates a client-side deadline expired before the
	// attempt completed. The server may be going through a temporary
	// period of slowness, so a retry has some prospect of success.
	//
	// Classify returns Timeout whenever the error, or any of its
	// wrapped causes, is context.DeadlineExceeded or has a Timeout()
	// function that reports true. A deadline abort is never reported
	// as NetworkUnavailable, even though both surface from the same
	// underlying transport primitive; retry policy depends on the
	// distinction.
	Timeout Kind = iota
	// NetworkUnavailable indicates the attempt failed before an HTTP
	// response or channel frame was obtained: connection refused,
	// connection reset, DNS failure, and similar conditions.
	NetworkUnavailable
	// HTTPStatus indicates the server answered with a non-2xx status.
	// The Status field holds the code and Message holds a
	// human-readable description extracted from the response body
	// where one was present.
	HTTPStatus
	// Malformed indicates a payload that could not be decoded where a
	// decodable payload was required, for example a buffered chat
	// response that is not valid JSON.
	Malformed
	// ChannelClosed indicates the duplex channel closed underneath an
	// in-flight turn, or was rejected by the server. The Code field
	// holds the WebSocket close code.
	ChannelClosed
	// Cancelled indicates the caller cancelled the operation. It is
	// never retried.
	Cancelled
)

var kindNames = []string{
	"timeout",
	"network unavailable",
	"http status",
	"malformed",
	"channel closed",
	"cancelled",
}

// String returns the name of the failure kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("fault.Kind(%d)", int(k))
}

// An Error is a classified transport failure.
//
// Error values are created by Classify, Status, Closed and Bad, and
// are forwarded unchanged by every layer above the one that produced
// them: a lower layer's Error is never silently re-wrapped.
type Error struct {
	// Kind is the failure classification. Exactly one Kind applies.
	Kind Kind
	// Label is the caller-supplied context label of the operation that
	// failed. It is used only for diagnostics.
	Label string
	// Status is the HTTP status code for HTTPStatus failures, and zero
	// otherwise.
	Status int
	// Code is the WebSocket close code for ChannelClosed failures, and
	// zero otherwise.
	Code int
	// Message is a human-readable description of the failure.
	Message string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case HTTPStatus:
		if e.Status == 0 {
			return fmt.Sprintf("relay: %s: %s", e.Label, e.Message)
		}
		return fmt.Sprintf("relay: %s: %s (status %d)", e.Label, e.Message, e.Status)
	case ChannelClosed:
		return fmt.Sprintf("relay: %s: %s (close code %d)", e.Label, e.Message, e.Code)
	default:
		return fmt.Sprintf("relay: %s: %s (%s)", e.Label, e.Message, e.Kind)
	}
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind, allowing
// errors.Is comparisons against sentinel failures.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Classify converts a raw failure into a classified Error.
//
// The rules, in order:
//
// • a nil error classifies to nil;
//
// • an error that is already an *Error passes through unchanged, so
// classification applied at two layers never double-wraps;
//
// • context.Canceled classifies as Cancelled;
//
// • context.DeadlineExceeded, or any error whose cause chain has a
// Timeout() function reporting true, classifies as Timeout;
//
// • everything else classifies as NetworkUnavailable.
//
// The label names the operation for diagnostics only; it carries no
// semantics.
func Classify(label string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	if errors.Is(err, context.Canceled) {
		return &Error{Kind: Cancelled, Label: label, Message: "cancelled", Cause: err}
	}

	var ht hasTimeout
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ht) && ht.Timeout()) {
		return &Error{Kind: Timeout, Label: label, Message: "deadline exceeded", Cause: err}
	}

	return &Error{Kind: NetworkUnavailable, Label: label, Message: err.Error(), Cause: err}
}

// Status builds an HTTPStatus Error from a non-2xx response.
//
// The body, when present, is probed for a JSON object carrying a
// human-readable "detail" or "message" field. When neither parses, the
// message falls back to "<label> failed <status>". A body that fails
// to parse never escalates the failure to a different kind.
func Status(label string, status int, body []byte) *Error {
	msg := fmt.Sprintf("%s failed %d", label, status)
	if len(body) > 0 {
		var payload struct {
			Detail  string `json:"detail"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body, &payload); err == nil {
			if payload.Detail != "" {
				msg = payload.Detail
			} else if payload.Message != "" {
				msg = payload.Message
			}
		}
	}
	return &Error{Kind: HTTPStatus, Label: label, Status: status, Message: msg}
}

// Closed builds a ChannelClosed Error for the given WebSocket close
// code.
func Closed(label string, code int, message string) *Error {
	if message == "" {
		message = "channel closed"
	}
	return &Error{Kind: ChannelClosed, Label: label, Code: code, Message: message}
}

// Remote builds an Error for a failure the server reported inside an
// otherwise healthy exchange: a stream error event or a duplex error
// frame. Such failures carry no HTTP status (Status is zero) and are
// never transient.
func Remote(label, message string) *Error {
	if message == "" {
		message = "server reported an error"
	}
	return &Error{Kind: HTTPStatus, Label: label, Message: message}
}

// Bad builds a Malformed Error for a payload that could not be
// decoded.
func Bad(label string, cause error) *Error {
	return &Error{Kind: Malformed, Label: label, Message: "malformed payload", Cause: cause}
}

// Canceled builds a Cancelled Error. It is used by transports to
// satisfy the one-terminal-notification guarantee when a caller
// abandons a turn.
func Canceled(label string) *Error {
	return &Error{Kind: Cancelled, Label: label, Message: "cancelled", Cause: context.Canceled}
}

// Transient reports whether err is a failure a retry has some prospect
// of curing: a Timeout, a NetworkUnavailable, or an HTTPStatus whose
// code appears in codes. Cancelled is never transient.
func Transient(err error, codes []int) bool {
	var typed *Error
	if !errors.As(err, &typed) || typed == nil {
		return false
	}
	switch typed.Kind {
	case Timeout, NetworkUnavailable:
		return true
	case HTTPStatus:
		for _, c := range codes {
			if typed.Status == c {
				return true
			}
		}
	}
	return false
}

type hasTimeout interface {
	Timeout() bool
}
