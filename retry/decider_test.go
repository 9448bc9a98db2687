// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wirechat/relay/fault"
	"github.com/wirechat/relay/request"
)

func TestDefaultDecider(t *testing.T) {
	t.Run("retryable status codes", func(t *testing.T) {
		for i, code := range TransientCodes {
			e := request.Execution{
				Response: &http.Response{StatusCode: code},
			}
			t.Run(fmt.Sprintf("TransientCodes[%d]=%d", i, code), func(t *testing.T) {
				for j := 0; j < DefaultTimes; j++ {
					e.Attempt = j
					assert.True(t, DefaultDecider(&e), "expect true for attempt %d", j)
				}
				e.Attempt = DefaultTimes
				assert.False(t, DefaultDecider(&e), "expect false for attempt %d", e.Attempt)
			})
		}
	})
	t.Run("non-retryable status codes", func(t *testing.T) {
		codes := []int{200, 201, 204, 301, 400, 401, 403, 404, 422, 501}
		for i, code := range codes {
			e := request.Execution{
				Response: &http.Response{StatusCode: code},
			}
			t.Run(fmt.Sprintf("codes[%d]=%d", i, code), func(t *testing.T) {
				e.Attempt = 0
				assert.False(t, DefaultDecider(&e), "expect false for attempt 0")
			})
		}
	})
	t.Run("transient errors", func(t *testing.T) {
		errs := []error{
			syscall.ECONNREFUSED,
			syscall.ECONNRESET,
			context.DeadlineExceeded,
			fault.Classify("chat", context.DeadlineExceeded),
			errors.New("dial tcp: no such host"),
		}
		for i, err := range errs {
			e := request.Execution{Err: err}
			t.Run(fmt.Sprintf("errs[%d]=%v", i, err), func(t *testing.T) {
				for j := 0; j < DefaultTimes; j++ {
					e.Attempt = j
					assert.True(t, DefaultDecider(&e), "expect true for attempt %d", j)
				}
				e.Attempt = DefaultTimes
				assert.False(t, DefaultDecider(&e), "expect false for attempt %d", e.Attempt)
			})
		}
	})
	t.Run("non-transient errors", func(t *testing.T) {
		errs := []error{
			context.Canceled,
			fault.Canceled("chat"),
			fault.Status("chat", 400, nil),
			fault.Bad("chat", errors.New("bad json")),
		}
		for i, err := range errs {
			e := request.Execution{Err: err}
			t.Run(fmt.Sprintf("errs[%d]=%v", i, err), func(t *testing.T) {
				e.Attempt = 0
				assert.False(t, DefaultDecider(&e), "expect false for attempt 0")
			})
		}
	})
	t.Run("no response, no error", func(t *testing.T) {
		assert.False(t, DefaultDecider(&request.Execution{}))
	})
}

func TestTimes(t *testing.T) {
	d := Times(2)
	assert.True(t, d(&request.Execution{Attempt: 0}))
	assert.True(t, d(&request.Execution{Attempt: 1}))
	assert.False(t, d(&request.Execution{Attempt: 2}))
	assert.False(t, Times(0)(&request.Execution{}))
}

func TestBefore(t *testing.T) {
	d := Before(time.Hour)
	e := request.Execution{Start: time.Now()}
	assert.True(t, d(&e))
	e.End = e.Start.Add(2 * time.Hour)
	assert.False(t, d(&e))
}

func TestStatusCode(t *testing.T) {
	d := StatusCode(429, 503)
	assert.True(t, d(&request.Execution{Response: &http.Response{StatusCode: 429}}))
	assert.True(t, d(&request.Execution{Response: &http.Response{StatusCode: 503}}))
	assert.False(t, d(&request.Execution{Response: &http.Response{StatusCode: 500}}))
	assert.False(t, d(&request.Execution{}))
}

func TestDeciderComposition(t *testing.T) {
	tr := DeciderFunc(func(*request.Execution) bool { return true })
	fa := DeciderFunc(func(*request.Execution) bool { return false })
	e := &request.Execution{}
	assert.True(t, tr.And(tr)(e))
	assert.False(t, tr.And(fa)(e))
	assert.False(t, fa.And(tr)(e))
	assert.True(t, tr.Or(fa)(e))
	assert.True(t, fa.Or(tr)(e))
	assert.False(t, fa.Or(fa)(e))
}
