// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package relay is a resilient transport layer for conversational AI
backends. It delivers chat turns over three interchangeable exchange
styles and absorbs the failures of each:

• buffered HTTP, where the whole response body arrives at once
(Messenger.Chat);

• streaming HTTP, where server-sent events carry incremental text
deltas (Messenger.Stream); and

• a persistent WebSocket channel carrying turns in both directions
(Messenger.Send, which prefers the channel and falls back to streaming
HTTP when it is unavailable).

Failed attempts are retried under a policy-driven retry loop with
exponential backoff and Retry-After support, each attempt bounded by a
policy-driven deadline. Every failure surfaced to a caller is
classified into the taxonomy of the relay/fault package, and every
streamed turn resolves with exactly one terminal notification: one
OnDone or one OnError, never both, never neither.

The lower-level building blocks are exported for direct use: Client is
a general-purpose buffered HTTP client with retry support, and the
relay/request, relay/retry, relay/timeout, relay/sse and relay/duplex
packages can be composed independently of Messenger.
*/
package relay
