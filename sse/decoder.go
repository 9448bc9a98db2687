// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package sse

import (
	"bytes"
	"encoding/json"
)

// FrameType discriminates the frames a Decoder produces.
type FrameType int

const (
	// Delta is an incremental text fragment.
	Delta FrameType = iota
	// Done marks the end of the stream. No further frames follow.
	Done
	// Error carries a server-reported failure message.
	Error
)

func (t FrameType) String() string {
	switch t {
	case Delta:
		return "delta"
	case Done:
		return "done"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// A Frame is one decoded stream event. Text holds the fragment for
// Delta frames and the message for Error frames; it is empty for Done.
type Frame struct {
	Type FrameType
	Text string
}

const (
	prefix     = "data:"
	terminator = "[DONE]"
)

// A Decoder incrementally assembles server-sent event frames from a
// raw byte stream. Chunks may arrive split at arbitrary boundaries:
// the decoder buffers partial lines and only interprets a line once
// its trailing newline has arrived, so a boundary falling inside an
// event never drops or corrupts a frame.
//
// A Decoder serves exactly one stream. Once it has produced a Done
// frame it emits nothing further; decode a new stream with a new
// Decoder.
//
// Decoder is not safe for concurrent use.
type Decoder struct {
	buf  bytes.Buffer
	done bool
}

// NewDecoder returns a Decoder with an empty buffer.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends chunk to the decoder's buffer and returns the frames
// completed by it, in order. The returned slice is nil when the chunk
// completes no frame.
func (d *Decoder) Feed(chunk []byte) []Frame {
	if d.done {
		return nil
	}

	d.buf.Write(chunk)

	var frames []Frame
	for {
		line, ok := d.nextLine()
		if !ok {
			return frames
		}
		if f, ok := decodeLine(line); ok {
			frames = append(frames, f)
			if f.Type == Done {
				d.done = true
				return frames
			}
		}
	}
}

// Done reports whether the stream has ended.
func (d *Decoder) Done() bool {
	return d.done
}

// nextLine extracts one complete newline-terminated line from the
// buffer, leaving any partial trailing line in place.
func (d *Decoder) nextLine() (string, bool) {
	b := d.buf.Bytes()
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return "", false
	}
	line := string(bytes.TrimSuffix(b[:i], []byte{'\r'}))
	d.buf.Next(i + 1)
	return line, true
}

func decodeLine(line string) (Frame, bool) {
	if len(line) < len(prefix) || line[:len(prefix)] != prefix {
		// Blank separator lines and non-event lines such as
		// comments or id fields carry no payload here.
		return Frame{}, false
	}

	payload := line[len(prefix):]
	if len(payload) > 0 && payload[0] == ' ' {
		payload = payload[1:]
	}

	if payload == terminator {
		return Frame{Type: Done}, true
	}

	var s string
	if err := json.Unmarshal([]byte(payload), &s); err == nil {
		return Frame{Type: Delta, Text: s}, true
	}

	var obj struct {
		Type    string  `json:"type"`
		Data    *string `json:"data"`
		Message string  `json:"message"`
	}
	if err := json.Unmarshal([]byte(payload), &obj); err == nil {
		switch obj.Type {
		case "done":
			return Frame{Type: Done}, true
		case "error":
			return Frame{Type: Error, Text: obj.Message}, true
		default:
			if obj.Data != nil {
				return Frame{Type: Delta, Text: *obj.Data}, true
			}
		}
	}

	// Tolerant fallback: surface the raw payload rather than dropping
	// text the server meant to deliver.
	return Frame{Type: Delta, Text: payload}, true
}
