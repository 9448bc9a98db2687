// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package timeout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wirechat/relay/fault"
	"github.com/wirechat/relay/request"
)

func TestFixed(t *testing.T) {
	p := Fixed(15 * time.Second)
	assert.Equal(t, 15*time.Second, p.Timeout(&request.Execution{}))
	assert.Equal(t, 15*time.Second, p.Timeout(timedOut(3)))
}

func TestDefaultPolicy(t *testing.T) {
	assert.Equal(t, 30*time.Second, DefaultPolicy.Timeout(&request.Execution{}))
}

func TestInfinite(t *testing.T) {
	assert.Equal(t, time.Duration(1<<63-1), Infinite.Timeout(&request.Execution{}))
}

func TestAdaptive(t *testing.T) {
	p := Adaptive(200*time.Millisecond, time.Second, 10*time.Second)

	t.Run("usual when previous attempt did not time out", func(t *testing.T) {
		assert.Equal(t, 200*time.Millisecond, p.Timeout(&request.Execution{}))
		assert.Equal(t, 200*time.Millisecond, p.Timeout(&request.Execution{AttemptTimeouts: 2}))
	})
	t.Run("escalates after timeouts", func(t *testing.T) {
		assert.Equal(t, time.Second, p.Timeout(timedOut(1)))
		assert.Equal(t, 10*time.Second, p.Timeout(timedOut(2)))
		assert.Equal(t, 10*time.Second, p.Timeout(timedOut(7)))
	})
}

func timedOut(n int) *request.Execution {
	return &request.Execution{
		AttemptTimeouts: n,
		Err:             fault.Classify("chat", context.DeadlineExceeded),
	}
}
