// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package relay

import (
	"github.com/rs/zerolog"

	"github.com/wirechat/relay/request"
)

// A LogHandler is an event handler that writes attempt lifecycle logs
// to a zerolog logger. New installs one automatically; install it by
// hand when assembling a Client directly:
//
//	g := &HandlerGroup{}
//	lh := &LogHandler{Logger: logger}
//	for _, evt := range Events() {
//		g.PushBack(evt, lh)
//	}
type LogHandler struct {
	Logger zerolog.Logger
}

// Handle logs the event.
func (h *LogHandler) Handle(evt Event, e *request.Execution) {
	switch evt {
	case BeforeAttempt:
		h.Logger.Debug().
			Str("label", e.Plan.Label).
			Str("url", e.Plan.URL.String()).
			Int("attempt", e.Attempt).
			Msg("attempt starting")
	case AfterAttempt:
		ev := h.Logger.Debug()
		if e.Err != nil {
			ev = h.Logger.Warn().Err(e.Err)
		}
		ev.Str("label", e.Plan.Label).
			Int("attempt", e.Attempt).
			Int("status", e.StatusCode()).
			Msg("attempt finished")
	case AfterPlanTimeout:
		h.Logger.Warn().
			Str("label", e.Plan.Label).
			Dur("elapsed", e.Duration()).
			Msg("deadline exceeded")
	case AfterExecutionEnd:
		h.Logger.Debug().
			Str("label", e.Plan.Label).
			Int("attempts", e.Attempt+1).
			Int("status", e.StatusCode()).
			Dur("duration", e.Duration()).
			Msg("execution ended")
	}
}
