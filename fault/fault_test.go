// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package fault

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, Classify("chat", nil))
	})
	t.Run("pass-through", func(t *testing.T) {
		typed := Status("chat", 400, nil)
		assert.Same(t, typed, Classify("other", typed))
		assert.Same(t, typed, Classify("other", fmt.Errorf("outer: %w", typed)))
	})
	t.Run("cancelled", func(t *testing.T) {
		e := Classify("chat", context.Canceled)
		require.NotNil(t, e)
		assert.Equal(t, Cancelled, e.Kind)
	})
	t.Run("timeout", func(t *testing.T) {
		cases := []error{
			context.DeadlineExceeded,
			syscall.ETIMEDOUT,
			timeoutErr{},
			&url.Error{Op: "Post", URL: "http://example.com", Err: timeoutErr{}},
			fmt.Errorf("wrapped: %w", context.DeadlineExceeded),
		}
		for i, err := range cases {
			t.Run(fmt.Sprintf("cases[%d]=%v", i, err), func(t *testing.T) {
				e := Classify("chat", err)
				require.NotNil(t, e)
				assert.Equal(t, Timeout, e.Kind)
			})
		}
	})
	t.Run("network", func(t *testing.T) {
		cases := []error{
			errors.New("no route to host"),
			syscall.ECONNREFUSED,
			syscall.ECONNRESET,
			&url.Error{Op: "Post", URL: "http://example.com", Err: syscall.ECONNRESET},
		}
		for i, err := range cases {
			t.Run(fmt.Sprintf("cases[%d]=%v", i, err), func(t *testing.T) {
				e := Classify("chat", err)
				require.NotNil(t, e)
				assert.Equal(t, NetworkUnavailable, e.Kind)
			})
		}
	})
}

func TestStatus(t *testing.T) {
	t.Run("detail field", func(t *testing.T) {
		e := Status("chat", 401, []byte(`{"detail":"token expired"}`))
		assert.Equal(t, HTTPStatus, e.Kind)
		assert.Equal(t, 401, e.Status)
		assert.Equal(t, "token expired", e.Message)
	})
	t.Run("message field", func(t *testing.T) {
		e := Status("chat", 503, []byte(`{"message":"overloaded"}`))
		assert.Equal(t, "overloaded", e.Message)
	})
	t.Run("fallback on empty body", func(t *testing.T) {
		e := Status("chat", 502, nil)
		assert.Equal(t, "chat failed 502", e.Message)
	})
	t.Run("fallback on unparseable body", func(t *testing.T) {
		e := Status("chat", 500, []byte("<html>oops</html>"))
		assert.Equal(t, HTTPStatus, e.Kind, "parse failure must not change the kind")
		assert.Equal(t, "chat failed 500", e.Message)
	})
	t.Run("fallback on object without known fields", func(t *testing.T) {
		e := Status("chat", 404, []byte(`{"error":"nope"}`))
		assert.Equal(t, "chat failed 404", e.Message)
	})
}

func TestTransient(t *testing.T) {
	codes := []int{408, 429, 500, 502, 503, 504}
	t.Run("retryable", func(t *testing.T) {
		assert.True(t, Transient(Classify("x", context.DeadlineExceeded), codes))
		assert.True(t, Transient(Classify("x", errors.New("conn refused")), codes))
		for _, c := range codes {
			assert.True(t, Transient(Status("x", c, nil), codes), "status %d", c)
		}
	})
	t.Run("not retryable", func(t *testing.T) {
		assert.False(t, Transient(Status("x", 400, nil), codes))
		assert.False(t, Transient(Status("x", 401, nil), codes))
		assert.False(t, Transient(Status("x", 404, nil), codes))
		assert.False(t, Transient(Classify("x", context.Canceled), codes))
		assert.False(t, Transient(Bad("x", errors.New("bad json")), codes))
		assert.False(t, Transient(Closed("x", 1008, "policy violation"), codes))
		assert.False(t, Transient(nil, codes))
		assert.False(t, Transient(errors.New("untyped"), codes))
	})
}

func TestRemote(t *testing.T) {
	e := Remote("stream", "model overloaded")
	assert.Equal(t, HTTPStatus, e.Kind)
	assert.Zero(t, e.Status)
	assert.Equal(t, "relay: stream: model overloaded", e.Error())
	assert.False(t, Transient(e, []int{500, 503}))

	assert.Equal(t, "server reported an error", Remote("stream", "").Message)
}

func TestErrorIs(t *testing.T) {
	e := Closed("send", 1006, "")
	assert.True(t, errors.Is(e, &Error{Kind: ChannelClosed}))
	assert.False(t, errors.Is(e, &Error{Kind: Timeout}))
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }

func (timeoutErr) Timeout() bool { return true }
