// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/beacon-app/beacon/lib/syncerr"
)

// Coordinates is a WGS84 position in decimal degrees.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Validate returns syncerr.ErrInvalidCoordinates unless latitude is in
// [-90, 90] and longitude in [-180, 180].
func (c Coordinates) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) ||
		c.Latitude < -90 || c.Latitude > 90 ||
		c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("(%v, %v): %w", c.Latitude, c.Longitude, syncerr.ErrInvalidCoordinates)
	}
	return nil
}

func (c Coordinates) String() string {
	return strconv.FormatFloat(c.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(c.Longitude, 'f', -1, 64)
}

// ParseCoordinates parses "latitude,longitude".
func ParseCoordinates(raw string) (Coordinates, error) {
	latitude, longitude, ok := strings.Cut(raw, ",")
	if !ok {
		return Coordinates{}, fmt.Errorf("coordinates %q: want latitude,longitude", raw)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latitude), 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("latitude %q: %w", latitude, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(longitude), 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("longitude %q: %w", longitude, err)
	}
	c := Coordinates{Latitude: lat, Longitude: lon}
	return c, c.Validate()
}

// Permission is the state of the location permission.
type Permission int

const (
	Undetermined Permission = iota
	Granted
	Denied
)

func (p Permission) String() string {
	switch p {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "undetermined"
	}
}

// Permissions reports the location permission. Asking the user is the
// platform's job; the engine only reads the answer.
type Permissions interface {
	LocationPermission() Permission
}

// StaticPermission is a Permissions that always reports itself.
type StaticPermission Permission

func (p StaticPermission) LocationPermission() Permission { return Permission(p) }

// Source is a continuous feed of position fixes. The channel closes
// when the feed ends.
type Source interface {
	Fixes() <-chan Coordinates
}

// Feed is a Source backed by a channel the caller writes to.
type Feed chan Coordinates

func (f Feed) Fixes() <-chan Coordinates { return f }
