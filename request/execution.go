// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/wirechat/relay/fault"
)

// An Execution represents the state of a single Plan execution.
//
// When a plan execution is requested, an Execution is created for it.
// The Execution is updated as the execution progresses (for example
// when the HTTP response becomes available, or when a retry is needed)
// and is ultimately returned as the result of the plan execution.
//
// Timeout and retry policies and event handlers may attach values to
// an Execution using its SetValue method and read them back using the
// Value method. However, they should treat the structure's exported
// fields as immutable and leave them unmodified, as the execution
// state is vital to the correct functioning of the retry loop.
type Execution struct {
	// Plan specifies the request plan being executed. It is never nil.
	Plan *Plan

	// Start is the start time of the plan execution. It is assigned a
	// non-zero value when the plan execution starts, and this value
	// remains constant thereafter.
	Start time.Time

	// End is the end time of the plan execution. It contains the zero
	// value until the plan execution ends, when it is set to the
	// current time.
	End time.Time

	// Attempt is the zero-based number of the current request attempt
	// during the plan execution. It is set to zero on the initial
	// attempt, one on the first retry, and so on.
	//
	// Exactly one attempt is in flight at any instant: retries are
	// strictly sequential, never parallel speculative attempts.
	Attempt int

	// AttemptTimeouts is the count of the number of times a request
	// attempt timed out during the execution.
	//
	// Plan timeouts (when the plan's own context deadline is exceeded)
	// do not contribute to the attempt timeout counter, but if an
	// attempt timeout and a plan timeout coincide, the attempt timeout
	// counter is incremented by one due to the attempt timeout.
	AttemptTimeouts int

	// Request specifies the HTTP request to be made in the current
	// attempt, or already made in the last attempt.
	Request *http.Request

	// Response specifies the HTTP response received in the most recent
	// request attempt. It will be nil if the most recent attempt ended
	// in an error, or if a current attempt is underway, or before the
	// execution starts.
	Response *http.Response

	// Err indicates the error received while making the most recent
	// request attempt. It will be nil if the most recent attempt ended
	// without an error, or if a current attempt is underway, or before
	// the execution starts.
	//
	// Whenever Err is non-nil, it is a classified *fault.Error. While
	// an execution is in flight, Err may fluctuate between nil and
	// various non-nil values. Once the execution has Ended, Err will
	// not change and has the same value as the error returned by the
	// client's executing method.
	Err error

	// Body is the complete response body read from the response after
	// the most recent request attempt. It will be nil if the most
	// recent attempt ended in an error, or if a current attempt is
	// underway.
	//
	// A 204 response leaves Body empty but non-erroneous: the
	// execution resolves successfully with an empty payload.
	Body []byte

	// data contains arbitrary user data attached by event handlers.
	data context.Context
}

// StatusCode returns the status code of the HTTP response from the
// most recent request attempt in the execution. If there is no HTTP
// response, 0 is returned.
func (e *Execution) StatusCode() int {
	if e.Response == nil {
		return 0
	}

	return e.Response.StatusCode
}

// Header returns the HTTP response headers from the most recent
// request attempt in the execution. If there is no HTTP response, the
// nil header is returned.
//
// A nil return value is always safe for read-only operations, since
// http.Header is a map type.
func (e *Execution) Header() http.Header {
	if e.Response == nil {
		var nilHeader http.Header
		return nilHeader
	}

	return e.Response.Header
}

// Duration returns the duration of the execution.
//
// If the execution has not yet started, the duration is zero. If the
// execution has Ended, the duration returned is equal to End minus
// Start. Otherwise, it is equal to the current time minus Start.
func (e *Execution) Duration() time.Duration {
	if !e.Started() {
		return time.Duration(0)
	} else if !e.Ended() {
		return time.Since(e.Start)
	}

	return e.End.Sub(e.Start)
}

// Started indicates whether the execution has started.
func (e *Execution) Started() bool {
	return e.Start != (time.Time{})
}

// Ended indicates whether the execution has ended.
//
// If the return value is true, End is a non-zero time and there will
// be no further changes to the execution.
func (e *Execution) Ended() bool {
	return e.End != (time.Time{})
}

// Timeout indicates whether Err currently contains a non-nil value
// classified as a timeout. The timeout may have been caused by a
// request attempt deadline, or by a plan deadline detected after the
// most recent request attempt.
func (e *Execution) Timeout() bool {
	var typed *fault.Error
	return errors.As(e.Err, &typed) && typed.Kind == fault.Timeout
}

// SetValue allows event handlers to store arbitrary data in the plan
// execution.
//
// The key must follow the same rules as the key parameter in
// context.WithValue: it may not be nil; it must be comparable; and it
// should not be of type string or any other built-in type to avoid
// collisions between different event handlers putting data into the
// same execution.
func (e *Execution) SetValue(key, value interface{}) {
	ctx := e.data
	if ctx == nil {
		ctx = context.Background()
	}

	e.data = context.WithValue(ctx, key, value)
}

// Value returns the data value associated with this execution for key,
// or nil if there is no value associated with key.
func (e *Execution) Value(key interface{}) interface{} {
	ctx := e.data
	if ctx == nil {
		return nil
	}

	return ctx.Value(key)
}
