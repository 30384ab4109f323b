// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for Beacon binaries: the
// fatal-error exit used by main() when run() fails before or outside
// the structured logger.
package process
