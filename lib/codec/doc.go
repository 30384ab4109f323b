// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the CBOR configuration shared by every package that
// persists or decodes records.
//
// The record store keeps each document's fields as one CBOR blob, and
// typed views of a document (a user profile, a chat message) are
// decoded from its untyped field map with Convert. Struct types that
// are only ever stored use `cbor` tags:
//
//	type storedLocation struct {
//	    Latitude  float64 `cbor:"latitude"`
//	    Longitude float64 `cbor:"longitude"`
//	}
//
// Normalize gives in-memory records the same value types as records
// read back from disk, so code that inspects fields never branches on
// the backend.
package codec
