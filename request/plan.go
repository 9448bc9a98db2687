// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	urlpkg "net/url"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"
)

var (
	template, _ = http.NewRequest("GET", "", nil)
)

const (
	nilCtxMsg = "relay/request: nil context"
)

// A Plan describes one logical request to the inference backend.
//
// The logical request described by a Plan typically results in one
// lower-level http.Request, but may result in several attempts if a
// failed attempt needs to be retried. The Plan itself is immutable
// once submitted to a client: the retry loop re-derives a fresh
// http.Request from the same Plan for every attempt and never writes
// back into it.
//
// Like the http.Request structure, a Plan has a context which governs
// the whole plan execution and can be used to cancel it at any time.
type Plan struct {
	// Method specifies the HTTP method (GET, POST, PUT, etc.).
	// An empty string means GET.
	Method string

	// URL specifies the URL to access.
	URL *urlpkg.URL

	// Header contains the request header fields to be sent with every
	// attempt.
	Header http.Header

	// Body is the pre-buffered request body to be sent. A nil or
	// empty body indicates no request body should be sent.
	Body []byte

	// Label names the operation for diagnostics. It appears in
	// classified failures and log lines and carries no other
	// semantics.
	Label string

	// Deadline optionally overrides the client's per-attempt timeout
	// for this plan only. Zero means use the client default.
	Deadline time.Duration

	// Host optionally overrides the Host header to send. If empty, the
	// value of URL.Host is sent.
	Host string

	// ctx allows the entire plan execution to be cancelled. It should
	// only be changed by copying the whole Plan using WithContext.
	ctx context.Context
}

// NewPlan wraps NewPlanWithContext using the background context.
//
// Parameter body may be nil (empty body), or it may be a string,
// []byte, io.Reader, or io.ReadCloser. If body is an io.Reader, it is
// read to the end and buffered into a []byte. If body is an
// io.ReadCloser, it is closed after buffering.
func NewPlan(method, url string, body interface{}) (*Plan, error) {
	return NewPlanWithContext(context.Background(), method, url, body)
}

// NewPlanWithContext returns a new Plan given a method, URL, and
// optional body.
//
// Parameter body may be nil (empty body), or it may be a string,
// []byte, io.Reader, or io.ReadCloser. If body is an io.Reader, it is
// read to the end and buffered into a []byte. If body is an
// io.ReadCloser, it is closed after buffering.
func NewPlanWithContext(ctx context.Context, method, url string, body interface{}) (*Plan, error) {
	if ctx == nil {
		return nil, errors.New(nilCtxMsg)
	}
	if method == "" {
		method = "GET"
	}
	// An HTTP method is a token per RFC 7230 §3.2.6, the same grammar
	// httpguts applies to header field names.
	if !httpguts.ValidHeaderFieldName(method) {
		return nil, fmt.Errorf("relay/request: invalid method %q", method)
	}
	u, err := urlpkg.Parse(url)
	if err != nil {
		return nil, err
	}
	u.Host = removeEmptyPort(u.Host)
	b, err := BodyBytes(body)
	if err != nil {
		return nil, err
	}
	return &Plan{
		ctx:    ctx,
		Method: method,
		URL:    u,
		Header: make(http.Header),
		Body:   b,
		Host:   u.Host,
	}, nil
}

// Context returns the request plan's context. The context controls
// cancellation of the overall plan execution. To change the context,
// use WithContext.
//
// The returned context is always non-nil; it defaults to the
// background context.
func (p *Plan) Context() context.Context {
	if p.ctx != nil {
		return p.ctx
	}
	return context.Background()
}

// WithContext returns a shallow copy of p with its context changed to
// ctx, which must be non-nil.
//
// The context controls the entire lifetime of the plan execution:
// making individual request attempts, running event handlers, and
// waiting out retry backoff periods.
func (p *Plan) WithContext(ctx context.Context) *Plan {
	if ctx == nil {
		panic(nilCtxMsg)
	}
	p2 := new(Plan)
	*p2 = *p
	p2.ctx = ctx
	return p2
}

// SetBearer sets the plan's Authorization header to the given bearer
// token. The token provider collaborator supplies the token; this
// method only installs it.
func (p *Plan) SetBearer(token string) {
	p.Header.Set("Authorization", "Bearer "+token)
}

// ToRequest creates an HTTP request corresponding to the given request
// plan. The context of the new request is set to ctx, which may not be
// nil.
func (p *Plan) ToRequest(ctx context.Context) *http.Request {
	r := template.WithContext(ctx)
	r.Method = p.Method
	r.URL = p.URL
	r.Header = p.Header
	if len(p.Body) > 0 {
		r.Body = io.NopCloser(bytes.NewReader(p.Body))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(p.Body)), nil
		}
		r.ContentLength = int64(len(p.Body))
	}
	r.Host = p.Host
	return r
}

// hasPort is lifted verbatim from net/http/http.go
//
// Given a string of the form "host", "host:port", or "[ipv6::address]:port",
// return true if the string includes a port.
func hasPort(s string) bool { return strings.LastIndex(s, ":") > strings.LastIndex(s, "]") }

// removeEmptyPort is lifted verbatim from net/http/http.go
//
// removeEmptyPort strips the empty port in ":port" to ""
// as mandated by RFC 3986 Section 6.2.3.
func removeEmptyPort(host string) string {
	if hasPort(host) {
		return strings.TrimSuffix(host, ":")
	}
	return host
}
