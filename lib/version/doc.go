// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for Beacon binaries.
//
// The variables are injected at link time:
//
//	go build -ldflags "-X github.com/beacon-app/beacon/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Without injection they read "unknown" and "0.1.0-dev".
package version
