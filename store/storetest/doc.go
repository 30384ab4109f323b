// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package storetest provides test support for code built on the record
// store: [Run], a conformance suite every Store implementation passes,
// and [Faulty], a wrapper that injects failures into chosen operations
// so tests can drive partial writes and unavailable-store paths.
package storetest
