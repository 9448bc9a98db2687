// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package fault contains the closed failure taxonomy shared by every
// relay transport.
//
// All failures surfaced by the relay client, the streaming decoder
// path, and the duplex channel are values of *fault.Error tagged with
// exactly one fault.Kind. Use fault.Classify to turn a raw transport
// error into a classified one, and fault.Transient to make a retry
// decision.
package fault
