// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package sse decodes server-sent event streams into discrete chat
// frames. The decoder is incremental and tolerant of arbitrary chunk
// boundaries, so it can be fed directly from a response body read
// loop.
package sse
