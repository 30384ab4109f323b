// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package profile reads and registers the public part of user records:
// display name, handle, and contact address. It resolves ids from the
// connection graph into something a person can read, and implements
// exact-handle search.
package profile
