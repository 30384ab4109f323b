// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the beacon binary: a tree
// of Commands with pflag flag sets, help output, typo suggestions for
// unknown commands and flags, and the logger every command uses.
package cli
