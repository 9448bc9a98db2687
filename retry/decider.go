// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"time"

	"github.com/wirechat/relay/fault"
	"github.com/wirechat/relay/request"
)

// A Decider decides if a retry should be done.
//
// Implementations of Decider must be safe for concurrent use by
// multiple goroutines.
//
// Use the built-in constructors Times, StatusCode, and Before, and the
// built-in decider TransientErr; or implement your own. Use
// DeciderFunc to convert an ordinary function into a Decider, and to
// compose deciders logically using DeciderFunc.And and DeciderFunc.Or.
type Decider interface {
	Decide(e *request.Execution) bool
}

// The DeciderFunc type is an adapter to allow the use of ordinary
// functions as retry deciders. It implements the Decider interface,
// and also provides the logical composition methods And and Or.
//
// Every DeciderFunc must be safe for concurrent use by multiple
// goroutines.
type DeciderFunc func(e *request.Execution) bool

// DefaultTimes is the number of times DefaultPolicy will retry, so a
// plan execution under DefaultPolicy makes up to DefaultTimes+1 total
// attempts.
const DefaultTimes = 3

// TransientCodes is the set of HTTP status codes considered transient:
// a response carrying one of these codes is worth retrying after a
// backoff wait. The set covers request timeout (408), throttling (429)
// and the retryable 5xx server conditions.
var TransientCodes = []int{408, 429, 500, 502, 503, 504}

// DefaultDecider is a general-purpose retry decider. It allows up to
// DefaultTimes retries, and retries when the attempt produced a
// transient classified failure (TransientErr) or a valid HTTP response
// carrying one of the TransientCodes. Anything else, including a
// cancelled attempt, is surfaced immediately.
var DefaultDecider = Times(DefaultTimes).And(StatusCode(TransientCodes...).Or(TransientErr))

// TransientErr is a decider that indicates a retry if the current
// error classifies as a Timeout or NetworkUnavailable failure.
//
// TransientErr only looks at the error, so it always returns false
// when a valid HTTP response was received. Compose it with a status
// code decider constructed with StatusCode to cover both cases.
// Cancelled failures are never transient.
var TransientErr DeciderFunc = transientErr

// Decide returns true if a retry should be done, and false otherwise,
// after examining the current plan execution state.
func (f DeciderFunc) Decide(e *request.Execution) bool {
	return f(e)
}

// And composes two retry deciders into a new decider which returns
// true if both sub-deciders return true, and false otherwise.
//
// Short-circuit logic is used, so g will not be evaluated if f returns
// false.
func (f DeciderFunc) And(g DeciderFunc) DeciderFunc {
	return func(e *request.Execution) bool {
		return f(e) && g(e)
	}
}

// Or composes two retry deciders into a new decider which returns
// true if either of the two sub-deciders returns true, but false if
// they both return false.
//
// Short-circuit logic is used, so g will not be evaluated if f returns
// true.
func (f DeciderFunc) Or(g DeciderFunc) DeciderFunc {
	return func(e *request.Execution) bool {
		return f(e) || g(e)
	}
}

// Times constructs a retry decider which allows up to n retries. The
// returned decider returns true while the execution attempt index
// e.Attempt is less than n, and false otherwise.
func Times(n int) DeciderFunc {
	return func(e *request.Execution) bool {
		return e.Attempt < n
	}
}

// Before constructs a retry decider allowing retries until a certain
// amount of time has elapsed since the start of the plan execution.
// The returned decider returns true while the execution duration is
// less than d, and false afterward.
func Before(d time.Duration) DeciderFunc {
	return func(e *request.Execution) bool {
		return e.Duration() < d
	}
}

// StatusCode constructs a retry decider allowing retries based on the
// HTTP response status code. If the most recent request attempt
// received a valid HTTP response, and the response status code is
// contained in the list ss, the decider returns true. Otherwise, it
// returns false.
func StatusCode(ss ...int) DeciderFunc {
	ss2 := make([]int, len(ss))
	copy(ss2, ss)
	return func(e *request.Execution) bool {
		for _, s := range ss2 {
			if e.StatusCode() == s {
				return true
			}
		}
		return false
	}
}

func transientErr(e *request.Execution) bool {
	if e.Err == nil {
		return false
	}
	return fault.Transient(fault.Classify("", e.Err), nil)
}
