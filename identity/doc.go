// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity carries sign-in state into the engine. The engine
// never issues identities itself; it follows a stream of Transitions
// produced by whatever authentication the client uses. Local is the
// provider used by the command-line tool and tests.
package identity
