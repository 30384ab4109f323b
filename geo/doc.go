// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package geo describes the geolocation collaborator: coordinates,
// the location permission, and a feed of position fixes. Platform
// integrations implement Permissions and Source; the engine only
// consumes them.
package geo
