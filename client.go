// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package relay

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/wirechat/relay/fault"
	"github.com/wirechat/relay/request"
	"github.com/wirechat/relay/retry"
	"github.com/wirechat/relay/timeout"
)

// An HTTPDoer implements a Do method in the same manner as the
// standard library http.Client from the net/http package.
type HTTPDoer interface {
	// Do sends an HTTP request and returns an HTTP response following
	// policy (such as redirects, cookies, auth) configured on the
	// HTTPDoer.
	Do(r *http.Request) (*http.Response, error)
}

var emptyHandlers = HandlerGroup{}

// A Client is a robust buffered HTTP client with retry support. Its
// zero value is a valid configuration.
//
// The zero value client uses http.DefaultClient as the HTTPDoer,
// timeout.DefaultPolicy as the timeout policy, retry.DefaultPolicy as
// the retry policy, and an empty handler group.
//
// Client's HTTPDoer typically has internal state (cached TCP
// connections) so Client instances should be reused instead of created
// as needed. Client is safe for concurrent use by multiple goroutines.
//
// On top of the HTTP request features provided by the HTTPDoer, Client
// adds the following:
//
// • the entire response body is read and buffered into a []byte
// (returned as the Execution.Body field);
//
// • failed request attempts are retried under a customizable retry
// policy, strictly one attempt at a time;
//
// • each attempt gets an individual deadline from a customizable
// timeout policy, overridable per plan via Plan.Deadline;
//
// • every attempt error is classified into the fault taxonomy before
// it is surfaced; and
//
// • user-provided handlers run at designated plug-in points within the
// attempt/retry loop, allowing features such as logging to be mixed in
// from outside.
type Client struct {
	// HTTPDoer specifies the mechanics of sending HTTP requests and
	// receiving responses.
	//
	// If HTTPDoer is nil, http.DefaultClient is used.
	HTTPDoer HTTPDoer
	// RetryPolicy decides when to retry failed attempts and how long
	// to sleep after a failed attempt before retrying.
	//
	// If RetryPolicy is nil, retry.DefaultPolicy is used.
	RetryPolicy retry.Policy
	// TimeoutPolicy specifies how to set deadlines on individual
	// request attempts.
	//
	// If TimeoutPolicy is nil, timeout.DefaultPolicy is used.
	TimeoutPolicy timeout.Policy
	// Handlers allows custom handler chains to be invoked when
	// designated events occur during execution of a request plan.
	//
	// If Handlers is nil, no custom handlers will be run.
	Handlers *HandlerGroup
}

// Do executes a request plan and returns the results, following the
// timeout and retry policy set on Client and low-level policy set on
// the underlying HTTPDoer.
//
// The result returned is the result after the final request attempt
// made during the plan execution, as determined by the retry policy.
// The plan itself is never mutated between attempts.
//
// An error is returned if, after doing any retries mandated by the
// retry policy, the final attempt resulted in an error. Any returned
// error is a classified *fault.Error; a non-2XX status code in the
// final attempt does not by itself result in an error.
//
// The returned Execution is never nil. If the returned error is nil,
// the Execution contains both a non-nil Response and a non-nil Body
// (although Body may have zero length, as it does on a 204 response).
func (c *Client) Do(p *request.Plan) (*request.Execution, error) {
	e := request.Execution{
		Plan: p,
	}

	doer := c.doer()

	timeoutPolicy := c.TimeoutPolicy
	if timeoutPolicy == nil {
		timeoutPolicy = timeout.DefaultPolicy
	}

	retryPolicy := c.RetryPolicy
	if retryPolicy == nil {
		retryPolicy = retry.DefaultPolicy
	}

	handlers := c.Handlers
	if handlers == nil {
		handlers = &emptyHandlers
	}
	handlers.run(BeforeExecutionStart, &e)
	e.Start = time.Now()

RetryLoop:
	for {
		sendAndReceive(p, &e, doer, handlers, timeoutPolicy)
		if e.Timeout() {
			e.AttemptTimeouts++
			handlers.run(AfterAttemptTimeout, &e)
		}
		handlers.run(AfterAttempt, &e)
		planCtxErr := p.Context().Err()
		if planCtxErr == context.DeadlineExceeded {
			handlers.run(AfterPlanTimeout, &e)
			break
		} else if planCtxErr != nil {
			e.Err = fault.Classify(p.Label, planCtxErr)
			break
		} else if retryPolicy.Decide(&e) {
			wait := retryPolicy.Wait(&e)
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
				break
			case <-p.Context().Done():
				timer.Stop()
				err := p.Context().Err()
				e.Err = fault.Classify(p.Label, err)
				if err == context.DeadlineExceeded {
					handlers.run(AfterPlanTimeout, &e)
				}
				break RetryLoop
			}
			e.Response = nil
			e.Err = nil
			e.Body = nil
			e.Attempt++
		} else {
			break
		}
	}

	e.End = time.Now()
	handlers.run(AfterExecutionEnd, &e)
	return &e, e.Err
}

func sendAndReceive(p *request.Plan, e *request.Execution, doer HTTPDoer, handlers *HandlerGroup, timeoutPolicy timeout.Policy) {
	d := p.Deadline
	if d == 0 {
		d = timeoutPolicy.Timeout(e)
	}
	ctx, cancel := context.WithTimeout(p.Context(), d)
	defer cancel()
	e.Request = p.ToRequest(ctx)
	handlers.run(BeforeAttempt, e)
	var err error
	e.Response, err = doer.Do(e.Request)
	if err != nil {
		e.Err = fault.Classify(p.Label, err)
	} else {
		readBody(p, e, handlers)
	}
}

func readBody(p *request.Plan, e *request.Execution, handlers *HandlerGroup) {
	defer func() {
		_ = e.Response.Body.Close()
	}()
	handlers.run(BeforeReadBody, e)
	var err error
	e.Body, err = io.ReadAll(e.Response.Body)
	if err != nil {
		e.Err = fault.Classify(p.Label, err)
	}
}

// Get issues a GET to the specified URL, using the same policies
// followed by Do.
//
// To make a request plan with custom headers, use request.NewPlan and
// Client.Do.
func (c *Client) Get(url string) (*request.Execution, error) {
	return Get(c, url)
}

// Post issues a POST to the specified URL, using the same policies
// followed by Do.
//
// The body parameter may be nil for an empty body, or may be any of
// the types supported by request.NewPlan and request.BodyBytes,
// namely: string; []byte; io.Reader; and io.ReadCloser.
//
// To make a request plan with custom headers, use request.NewPlan and
// Client.Do.
func (c *Client) Post(url, contentType string, body interface{}) (*request.Execution, error) {
	return Post(c, url, contentType, body)
}

// CloseIdleConnections invokes the same method on the client's
// underlying HTTPDoer.
//
// If the HTTPDoer has no CloseIdleConnections method, this method does
// nothing.
func (c *Client) CloseIdleConnections() {
	doer := c.doer()
	if ic, ok := doer.(IdleCloser); ok {
		ic.CloseIdleConnections()
	}
}

func (c *Client) doer() HTTPDoer {
	if c.HTTPDoer == nil {
		return http.DefaultClient
	}

	return c.HTTPDoer
}
