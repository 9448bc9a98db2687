// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package relay

import (
	"encoding/json"

	"github.com/wirechat/relay/request"
)

// Doer is the interface that wraps the basic Do method.
//
// Do executes a request plan and returns the final execution state
// (and error, if any). Client implements the Doer interface, and any
// other Doer implementation must behave substantially the same as
// Client.Do.
type Doer interface {
	Do(p *request.Plan) (*request.Execution, error)
}

// Getter is the interface that wraps the basic Get method.
//
// Any Doer can be used to emulate a Getter via the Get function.
type Getter interface {
	Get(url string) (*request.Execution, error)
}

// Poster is the interface that wraps the basic Post method.
//
// The body parameter may be nil for an empty body, or may be any of
// the types supported by request.NewPlan and request.BodyBytes,
// namely: string; []byte; io.Reader; and io.ReadCloser.
//
// Any Doer can be used to emulate a Poster via the Post function.
type Poster interface {
	Post(url, contentType string, body interface{}) (*request.Execution, error)
}

// IdleCloser is the interface that wraps the basic
// CloseIdleConnections method.
//
// If the underlying implementation supports it, CloseIdleConnections
// closes connections sitting idle in a "keep-alive" state without
// interrupting any connections currently in use. Otherwise it does
// nothing.
type IdleCloser interface {
	CloseIdleConnections()
}

// Executor is the interface that groups the basic Do, Get, Post, and
// CloseIdleConnections methods.
type Executor interface {
	Doer
	Getter
	Poster
	IdleCloser
}

// Get uses the specified Doer to issue a GET to the specified URL,
// using the same policies as d.Do.
//
// To make a request plan with custom headers, use request.NewPlan and
// d.Do.
func Get(d Doer, url string) (*request.Execution, error) {
	p, err := request.NewPlan("GET", url, nil)
	if err != nil {
		return nil, err
	}
	return d.Do(p)
}

// Post uses the specified Doer to issue a POST to the specified URL,
// using the same policies as d.Do.
//
// To make a request plan with custom headers, use request.NewPlan and
// d.Do.
func Post(d Doer, url, contentType string, body interface{}) (*request.Execution, error) {
	b, err := request.BodyBytes(body)
	if err != nil {
		return nil, err
	}
	p, err := request.NewPlan("POST", url, b)
	if err != nil {
		return nil, err
	}
	p.Header.Set("Content-Type", contentType)
	return d.Do(p)
}

// PostJSON marshals v and uses the specified Doer to POST it to the
// specified URL with an application/json content type.
func PostJSON(d Doer, url string, v interface{}) (*request.Execution, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Post(d, url, "application/json", b)
}
