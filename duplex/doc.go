// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package duplex maintains a persistent WebSocket channel for chat
// turns. The channel owns its socket, heartbeat timer and reconnect
// timer; it classifies peer close codes into normal, fatal and
// reconnect-eligible outcomes, and reconnects with exponential backoff
// against a budget that refills on every successful open.
package duplex
