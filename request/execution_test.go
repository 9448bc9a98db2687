// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wirechat/relay/fault"
)

func TestExecutionStatusCode(t *testing.T) {
	e := Execution{}
	assert.Equal(t, 0, e.StatusCode())
	e.Response = &http.Response{StatusCode: 503}
	assert.Equal(t, 503, e.StatusCode())
}

func TestExecutionHeader(t *testing.T) {
	e := Execution{}
	assert.Nil(t, e.Header())
	assert.Equal(t, "", e.Header().Get("Retry-After"))
	e.Response = &http.Response{Header: http.Header{"Retry-After": []string{"2"}}}
	assert.Equal(t, "2", e.Header().Get("Retry-After"))
}

func TestExecutionLifecycle(t *testing.T) {
	e := Execution{}
	assert.False(t, e.Started())
	assert.False(t, e.Ended())
	assert.Equal(t, time.Duration(0), e.Duration())

	e.Start = time.Now()
	assert.True(t, e.Started())
	assert.False(t, e.Ended())
	assert.GreaterOrEqual(t, e.Duration(), time.Duration(0))

	e.End = e.Start.Add(250 * time.Millisecond)
	assert.True(t, e.Ended())
	assert.Equal(t, 250*time.Millisecond, e.Duration())
}

func TestExecutionTimeout(t *testing.T) {
	e := Execution{}
	assert.False(t, e.Timeout())
	e.Err = fault.Classify("chat", errors.New("conn refused"))
	assert.False(t, e.Timeout())
	e.Err = fault.Classify("chat", context.DeadlineExceeded)
	assert.True(t, e.Timeout())
}

func TestExecutionValues(t *testing.T) {
	type key struct{}
	e := Execution{}
	assert.Nil(t, e.Value(key{}))
	e.SetValue(key{}, 42)
	assert.Equal(t, 42, e.Value(key{}))
	e.SetValue(key{}, 43)
	assert.Equal(t, 43, e.Value(key{}))
}
