// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package relay

import (
	"strings"

	"github.com/wirechat/relay/duplex"
)

// A Message is one prior exchange in the conversation memory.
type Message struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
}

// A Turn is one chat exchange to deliver: the new input plus the
// conversation memory that precedes it. Provider and Model override
// the Config defaults when non-empty.
type Turn struct {
	Input    string
	Memory   []Message
	Provider string
	Model    string
}

// A Receiver consumes the frames of one streamed turn. Exactly one of
// OnDone or OnError is invoked per turn.
type Receiver = duplex.Receiver

// chatRequest is the HTTP wire shape of a turn.
type chatRequest struct {
	Input       string    `json:"input"`
	Memory      []Message `json:"memory"`
	Provider    string    `json:"provider,omitempty"`
	Model       string    `json:"model,omitempty"`
	EnableTools bool      `json:"enable_tools"`
}

// chatResponse is the buffered HTTP success payload.
type chatResponse struct {
	Output string `json:"output"`
}

// chatFrame is the outbound duplex wire shape of a turn.
type chatFrame struct {
	Type     string    `json:"type"`
	Input    string    `json:"input"`
	Memory   []Message `json:"memory"`
	Provider string    `json:"provider,omitempty"`
	Model    string    `json:"model,omitempty"`
}

func (t Turn) request(cfg Config) chatRequest {
	return chatRequest{
		Input:       t.Input,
		Memory:      t.memory(),
		Provider:    t.provider(cfg),
		Model:       t.model(cfg),
		EnableTools: cfg.EnableTools,
	}
}

func (t Turn) frame(cfg Config) chatFrame {
	return chatFrame{
		Type:     "chat",
		Input:    t.Input,
		Memory:   t.memory(),
		Provider: t.provider(cfg),
		Model:    t.model(cfg),
	}
}

// memory never marshals as JSON null.
func (t Turn) memory() []Message {
	if t.Memory == nil {
		return []Message{}
	}
	return t.Memory
}

func (t Turn) provider(cfg Config) string {
	if t.Provider != "" {
		return t.Provider
	}
	return cfg.Provider
}

func (t Turn) model(cfg Config) string {
	if t.Model != "" {
		return t.Model
	}
	return cfg.Model
}

// A Collector is a Receiver that assembles the turn's deltas into one
// string. Because Messenger's streaming methods block until the turn's
// terminal frame, the collected text is complete as soon as the method
// returns.
type Collector struct {
	b   strings.Builder
	err error
}

// OnDelta appends the fragment to the collected text.
func (c *Collector) OnDelta(text string) {
	c.b.WriteString(text)
}

// OnDone marks the turn complete.
func (c *Collector) OnDone() {}

// OnError records the turn's terminal failure.
func (c *Collector) OnError(err error) {
	c.err = err
}

// Text returns the text collected so far.
func (c *Collector) Text() string {
	return c.b.String()
}

// Err returns the terminal failure, if any.
func (c *Collector) Err() error {
	return c.err
}
