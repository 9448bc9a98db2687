// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package request provides the relay request plan (the immutable
// descriptor of one logical backend request) and the execution state
// the retrying client threads through its attempt loop.
package request
