// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package relay

import (
	"context"
	"io"
	"time"

	"github.com/wirechat/relay/fault"
	"github.com/wirechat/relay/request"
	"github.com/wirechat/relay/retry"
	"github.com/wirechat/relay/sse"
)

// maxErrorBody bounds how much of a non-2xx streaming response is read
// while probing it for a failure message.
const maxErrorBody = 8 << 10

// Stream delivers the turn over streaming HTTP and blocks until its
// terminal frame, dispatching each decoded frame to r as it arrives.
//
// Attempts that fail before the first frame (connection errors,
// timeouts, transient status codes) are retried under the configured
// retry policy. Once any frame has been delivered the attempt is
// committed: a mid-stream failure is surfaced immediately rather than
// retried, since a retry would duplicate the partial content already
// delivered.
//
// Streaming attempts take no per-attempt deadline; their lifetime is
// governed by ctx.
//
// Exactly one of r.OnDone or r.OnError fires per call. The returned
// error mirrors the terminal notification.
func (m *Messenger) Stream(ctx context.Context, turn Turn, r Receiver) error {
	p, err := m.plan(ctx, turn, true)
	if err != nil {
		r.OnError(err)
		return err
	}
	return m.stream(p, r)
}

func (m *Messenger) stream(p *request.Plan, r Receiver) error {
	doer := m.client.doer()

	retryPolicy := m.client.RetryPolicy
	if retryPolicy == nil {
		retryPolicy = retry.DefaultPolicy
	}

	handlers := m.client.Handlers
	if handlers == nil {
		handlers = &emptyHandlers
	}

	e := request.Execution{Plan: p}
	handlers.run(BeforeExecutionStart, &e)
	e.Start = time.Now()

	var terminal error
	committed := false

RetryLoop:
	for {
		terminal, committed = m.streamAttempt(p, &e, doer, handlers, r)
		if e.Timeout() {
			e.AttemptTimeouts++
			handlers.run(AfterAttemptTimeout, &e)
		}
		handlers.run(AfterAttempt, &e)
		if terminal == nil || committed {
			break
		}
		ctxErr := p.Context().Err()
		if ctxErr == context.DeadlineExceeded {
			handlers.run(AfterPlanTimeout, &e)
			break
		} else if ctxErr != nil {
			terminal = fault.Classify(p.Label, ctxErr)
			e.Err = terminal
			break
		}
		if !retryPolicy.Decide(&e) {
			break
		}
		wait := retryPolicy.Wait(&e)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-p.Context().Done():
			timer.Stop()
			err := p.Context().Err()
			terminal = fault.Classify(p.Label, err)
			e.Err = terminal
			if err == context.DeadlineExceeded {
				handlers.run(AfterPlanTimeout, &e)
			}
			break RetryLoop
		}
		e.Response = nil
		e.Err = nil
		e.Attempt++
	}

	e.End = time.Now()
	handlers.run(AfterExecutionEnd, &e)

	if terminal != nil {
		r.OnError(terminal)
		return terminal
	}
	r.OnDone()
	return nil
}

// streamAttempt performs one streaming request attempt. It returns the
// attempt's terminal error (nil once a done frame arrives) and whether
// the attempt committed by delivering at least one frame to r.
func (m *Messenger) streamAttempt(p *request.Plan, e *request.Execution, doer HTTPDoer, handlers *HandlerGroup, r Receiver) (error, bool) {
	e.Request = p.ToRequest(p.Context())
	handlers.run(BeforeAttempt, e)

	resp, err := doer.Do(e.Request)
	if err != nil {
		e.Err = fault.Classify(p.Label, err)
		return e.Err, false
	}
	e.Response = resp

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		e.Err = fault.Status(p.Label, resp.StatusCode, body)
		return e.Err, false
	}

	defer resp.Body.Close()
	dec := sse.NewDecoder()
	buf := make([]byte, 4096)
	delivered := false
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			for _, f := range dec.Feed(buf[:n]) {
				switch f.Type {
				case sse.Delta:
					delivered = true
					r.OnDelta(f.Text)
				case sse.Error:
					// The server reported the failure itself; another
					// attempt would re-fail the same way.
					e.Err = fault.Remote(p.Label, f.Text)
					return e.Err, true
				case sse.Done:
					return nil, true
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				// The body ended without a terminator: a truncated
				// stream, not a completed one.
				err = io.ErrUnexpectedEOF
			}
			e.Err = fault.Classify(p.Label, err)
			return e.Err, delivered
		}
	}
}
