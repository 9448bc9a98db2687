// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package timeout

import (
	"time"

	"github.com/wirechat/relay/request"
)

// A Policy defines a timeout policy which may be plugged into the
// relay client to direct how to set the deadline for the initial
// request attempt, as well as for any subsequent retries. The client
// arms a timer with the policy's value before each attempt and always
// releases it when the attempt finishes, success or failure.
//
// A plan carrying its own Deadline overrides the policy for that plan
// only; the override is applied by the client, not by the policy.
//
// Implementations of Policy must be safe for concurrent use by
// multiple goroutines.
type Policy interface {
	// Timeout returns the deadline to set on the next request attempt
	// within the plan execution.
	Timeout(e *request.Execution) time.Duration
}

// DefaultPolicy is the default timeout policy. It sets a fixed
// deadline of 30 seconds on each attempt, a value sized for inference
// backends that may legitimately take many seconds to produce a
// buffered completion.
var DefaultPolicy Policy = Fixed(30 * time.Second)

// Infinite is a built-in timeout policy which never times out. It is
// meant for streaming attempts whose lifetime is governed by the plan
// context rather than a per-attempt deadline.
var Infinite Policy = Fixed(1<<63 - 1)

// Fixed constructs a timeout policy that uses the same value for
// every attempt deadline.
func Fixed(d time.Duration) Policy {
	return policy([]time.Duration{d})
}

// Adaptive constructs a timeout policy that varies the next deadline
// if the previous attempt timed out.
//
// Parameter usual is the deadline the policy returns for an initial
// attempt and for any retry where the immediately preceding attempt
// did not time out.
//
// Parameter after contains deadlines the policy returns when the
// previous attempt timed out: after[0] following the first timeout of
// the execution, after[1] following the second, and so on, with the
// last element repeating once the execution has timed out more times
// than after has elements.
//
// Use Adaptive when the backend exhibits one-off slow responses that
// are best cured by a quick timeout and retry, while still backing off
// to a generous deadline during a genuine burst of slowness.
func Adaptive(usual time.Duration, after ...time.Duration) Policy {
	p := make([]time.Duration, 1, 1+len(after))
	p[0] = usual
	return policy(append(p, after...))
}

type policy []time.Duration

func (p policy) Timeout(e *request.Execution) time.Duration {
	if !e.Timeout() {
		return p[0]
	}

	i := e.AttemptTimeouts
	if i > len(p)-1 {
		i = len(p) - 1
	}

	return p[i]
}
