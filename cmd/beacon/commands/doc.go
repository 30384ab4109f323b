// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands defines the beacon command tree. Every command opens
// the record store named by the configuration (or --db), acts as the
// user named by --as, and exits.
package commands
