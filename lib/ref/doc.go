// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated identifier types.
//
// [UserID] names a user record. It is restricted to ASCII letters,
// digits, '.', and '-', which keeps it safe as a record path segment
// and reserves '_' as the separator inside a [ThreadKey].
//
// [ThreadKey] names the chat thread between two users. It is the two
// participant ids sorted and joined with '_', so both participants
// derive the same key with no coordination.
//
// Both are immutable value types whose zero value is invalid (check
// with IsZero) and which serialize as plain text through
// encoding.TextMarshaler.
package ref
