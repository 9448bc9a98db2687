// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/wirechat/relay/request"
)

// A Waiter specifies how long to wait before retrying a failed request
// attempt.
//
// Implementations of Waiter must be safe for concurrent use by
// multiple goroutines.
//
// The relay client will not call the Waiter on a retry policy if the
// policy Decider returned false.
type Waiter interface {
	Wait(e *request.Execution) time.Duration
}

// DefaultWaiter is the default retry wait policy. It honors a server
// supplied Retry-After header when one is present, and otherwise uses
// an exponential backoff formula with a base wait of 1 second, a
// maximum wait of 30 seconds, and up to 250 milliseconds of random
// jitter.
var DefaultWaiter = RespectRetryAfter(NewExpWaiter(1*time.Second, 30*time.Second, 250*time.Millisecond, time.Now()))

// NewFixedWaiter constructs a Waiter that always returns the given
// duration.
func NewFixedWaiter(d time.Duration) Waiter {
	return fixedWaiter(d)
}

type fixedWaiter time.Duration

func (w fixedWaiter) Wait(_ *request.Execution) time.Duration {
	return time.Duration(w)
}

// NewExpWaiter constructs a Waiter implementing exponential backoff
// with bounded additive jitter.
//
// The wait before the retry that follows attempt n is:
//
//	wait := min(base * 2**n, max) + random(0, jitterMax)
//
// Base must be positive and max must be at least equal to base.
// JitterMax bounds the random component; pass zero for a fully
// deterministic waiter.
//
// Parameter jitter seeds the random component. Pass nil for the
// deterministic case, or a seed value (time.Time, int, or int64) or a
// random number source (rand.Source or *rand.Rand).
func NewExpWaiter(base, max, jitterMax time.Duration, jitter interface{}) Waiter {
	if base < 1 {
		panic("relay/retry: base must be positive")
	}
	if max < base {
		panic("relay/retry: max must be at least base")
	}
	if jitterMax < 0 {
		panic("relay/retry: jitterMax may not be negative")
	}
	r := jitterToRand(jitter)
	return &jitterExpWaiter{
		base:      base,
		max:       max,
		jitterMax: jitterMax,
		rand:      r,
	}
}

type jitterExpWaiter struct {
	base      time.Duration
	max       time.Duration
	jitterMax time.Duration
	rand      *rand.Rand
	lock      sync.Mutex
}

func (w *jitterExpWaiter) Wait(e *request.Execution) time.Duration {
	exp := int64(1) << e.Attempt
	if exp < 1 {
		exp = 1<<63 - 1
	}

	ceil := int64(w.base) * exp
	if ceil < int64(w.base) || int64(w.max) < ceil {
		ceil = int64(w.max)
	}

	duration := ceil
	if w.jitterMax > 0 && w.rand != nil {
		w.lock.Lock()
		duration += w.rand.Int63n(int64(w.jitterMax) + 1)
		w.lock.Unlock()
	}

	return time.Duration(duration)
}

// RespectRetryAfter wraps a fallback Waiter with support for the
// Retry-After response header.
//
// If the most recent attempt received a response carrying a parseable
// Retry-After value, either delta-seconds or an HTTP-date, the header
// value is honored exactly. Otherwise the fallback waiter computes the
// wait. A negative wait (an HTTP-date in the past) is clamped to zero.
func RespectRetryAfter(fallback Waiter) Waiter {
	if fallback == nil {
		panic("relay/retry: nil fallback waiter")
	}
	return retryAfterWaiter{fallback}
}

type retryAfterWaiter struct {
	fallback Waiter
}

func (w retryAfterWaiter) Wait(e *request.Execution) time.Duration {
	if d, ok := parseRetryAfter(e.Header().Get("Retry-After"), time.Now()); ok {
		return d
	}
	return w.fallback.Wait(e)
}

// parseRetryAfter parses a Retry-After header value per RFC 7231 §7.1.3:
// either a non-negative integer number of seconds, or an HTTP-date.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func jitterToRand(jitter interface{}) *rand.Rand {
	var s rand.Source
	switch j := jitter.(type) {
	case nil:
		return nil
	case time.Time:
		s = rand.NewSource(j.UnixNano())
	case int:
		s = rand.NewSource(int64(j))
	case int64:
		s = rand.NewSource(j)
	case *rand.Rand:
		if j == nil {
			panic("relay/retry: jitter may not be a typed nil")
		}
		return j
	case rand.Source:
		s = j
	default:
		panic("relay/retry: invalid jitter type")
	}
	return rand.New(s)
}
