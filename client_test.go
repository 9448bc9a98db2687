// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirechat/relay/fault"
	"github.com/wirechat/relay/request"
	"github.com/wirechat/relay/retry"
	"github.com/wirechat/relay/timeout"
)

// fastPolicy retries transient failures immediately so tests do not
// sleep through real backoff.
var fastPolicy = retry.NewPolicy(
	retry.Times(retry.DefaultTimes).And(retry.StatusCode(retry.TransientCodes...).Or(retry.TransientErr)),
	retry.NewFixedWaiter(time.Millisecond),
)

func newTestClient(doer HTTPDoer) *Client {
	return &Client{
		HTTPDoer:      doer,
		RetryPolicy:   fastPolicy,
		TimeoutPolicy: timeout.Fixed(5 * time.Second),
	}
}

func TestClientDo(t *testing.T) {
	t.Run("success on first attempt", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.Write([]byte(`{"output":"hello"}`))
		}))
		defer srv.Close()

		c := newTestClient(nil)
		e, err := c.Post(srv.URL, "application/json", `{"input":"hi"}`)
		require.NoError(t, err)
		assert.Equal(t, 200, e.StatusCode())
		assert.JSONEq(t, `{"output":"hello"}`, string(e.Body))
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		assert.Equal(t, 0, e.Attempt)
		assert.True(t, e.Ended())
	})
	t.Run("retries transient status", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) <= 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{"output":"ok"}`))
		}))
		defer srv.Close()

		c := newTestClient(nil)
		e, err := c.Get(srv.URL)
		require.NoError(t, err)
		assert.Equal(t, 200, e.StatusCode())
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
		assert.Equal(t, 2, e.Attempt)
	})
	t.Run("no retry on non-transient status", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			http.Error(w, `{"detail":"bad request"}`, http.StatusBadRequest)
		}))
		defer srv.Close()

		c := newTestClient(nil)
		e, err := c.Get(srv.URL)
		require.NoError(t, err, "a non-2xx response is not an error at this layer")
		assert.Equal(t, 400, e.StatusCode())
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
	t.Run("exhausts retries", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		c := newTestClient(nil)
		e, err := c.Get(srv.URL)
		require.NoError(t, err)
		assert.Equal(t, 502, e.StatusCode())
		assert.Equal(t, int32(1+retry.DefaultTimes), atomic.LoadInt32(&calls))
	})
	t.Run("204 resolves with empty body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		c := newTestClient(nil)
		e, err := c.Get(srv.URL)
		require.NoError(t, err)
		assert.Equal(t, 204, e.StatusCode())
		assert.NotNil(t, e.Body)
		assert.Empty(t, e.Body)
	})
	t.Run("attempt timeout classified and counted", func(t *testing.T) {
		block := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-block
		}))
		defer srv.Close()
		defer close(block)

		c := &Client{
			RetryPolicy:   retry.Never,
			TimeoutPolicy: timeout.Fixed(20 * time.Millisecond),
		}
		e, err := c.Get(srv.URL)
		require.Error(t, err)
		var fe *fault.Error
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, fault.Timeout, fe.Kind)
		assert.Equal(t, 1, e.AttemptTimeouts)
		assert.Same(t, err, e.Err)
	})
	t.Run("network failure classified", func(t *testing.T) {
		c := &Client{RetryPolicy: retry.Never}
		_, err := c.Get("http://127.0.0.1:1/")
		require.Error(t, err)
		var fe *fault.Error
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, fault.NetworkUnavailable, fe.Kind)
	})
	t.Run("cancellation aborts pending retry wait", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		p, err := request.NewPlanWithContext(ctx, "GET", srv.URL, nil)
		require.NoError(t, err)

		c := &Client{
			RetryPolicy: retry.NewPolicy(
				retry.Times(3).And(retry.StatusCode(503)),
				retry.NewFixedWaiter(time.Hour),
			),
			TimeoutPolicy: timeout.Fixed(5 * time.Second),
		}

		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		start := time.Now()
		_, err = c.Do(p)
		require.Error(t, err)
		var fe *fault.Error
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, fault.Cancelled, fe.Kind)
		assert.Less(t, time.Since(start), time.Minute)
	})
	t.Run("plan deadline override", func(t *testing.T) {
		block := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-block
		}))
		defer srv.Close()
		defer close(block)

		p, err := request.NewPlan("GET", srv.URL, nil)
		require.NoError(t, err)
		p.Deadline = 20 * time.Millisecond

		c := &Client{
			RetryPolicy:   retry.Never,
			TimeoutPolicy: timeout.Fixed(time.Hour),
		}
		start := time.Now()
		_, err = c.Do(p)
		require.Error(t, err)
		var fe *fault.Error
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, fault.Timeout, fe.Kind)
		assert.Less(t, time.Since(start), time.Minute)
	})
}

func TestClientHandlers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	var events []Event
	g := &HandlerGroup{}
	for _, evt := range Events() {
		g.PushBack(evt, HandlerFunc(func(evt Event, e *request.Execution) {
			events = append(events, evt)
		}))
	}

	c := newTestClient(nil)
	c.Handlers = g
	_, err := c.Get(srv.URL)
	require.NoError(t, err)

	assert.Equal(t, []Event{
		BeforeExecutionStart,
		BeforeAttempt,
		BeforeReadBody,
		AfterAttempt,
		AfterExecutionEnd,
	}, events)
}

func TestHandlerGroupPushBackNil(t *testing.T) {
	g := &HandlerGroup{}
	assert.PanicsWithValue(t, "relay: nil handler", func() { g.PushBack(BeforeAttempt, nil) })
}

func TestEventNames(t *testing.T) {
	assert.Len(t, Events(), numEvents)
	assert.Equal(t, "BeforeAttempt", BeforeAttempt.String())
	assert.Equal(t, "AfterExecutionEnd", AfterExecutionEnd.Name())
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	e, err := PostJSON(newTestClient(nil), srv.URL, map[string]string{"input": "hi"})
	require.NoError(t, err)
	assert.Equal(t, 204, e.StatusCode())
}
