// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package retry provides flexible policies for retrying failed
// attempts during a request plan execution, and for deciding how long
// to wait before retrying.
//
// The interface Policy defines a retry policy. A Policy instance can
// be constructed using NewPolicy by providing a decision-maker,
// Decider, and a wait time calculator, Waiter. Both Decider and Waiter
// have constructors for common use cases, so that a useful policy can
// be quickly assembled:
//
//	decider := retry.Times(3).
//	               And(retry.StatusCode(retry.TransientCodes...).
//	                   Or(retry.TransientErr))
//	waiter := retry.RespectRetryAfter(
//	              retry.NewExpWaiter(time.Second, 30*time.Second, 250*time.Millisecond, time.Now()))
//	policy := retry.NewPolicy(decider, waiter)
//
// If the built-in functionality is insufficient, fully custom retry
// policies can be created via custom implementations of Decider,
// Waiter, or Policy.
package retry
