// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"maps"
	"math"
	"path"

	"github.com/beacon-app/beacon/lib/codec"
)

// Document is one snapshot of a record.
type Document struct {
	// Path is the full document path.
	Path string

	// Exists is false for a document that has never been written.
	Exists bool

	// Fields holds the record's fields with the value types produced
	// by codec.Normalize. Treat it as read-only.
	Fields map[string]any

	// Sequence is the store-wide commit sequence of the write that
	// produced this snapshot. Zero for a missing document.
	Sequence uint64
}

// ID returns the last path segment.
func (d Document) ID() string { return path.Base(d.Path) }

// Decode reads the fields into v, a pointer to a struct with cbor tags.
func (d Document) Decode(v any) error {
	fields := d.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	return codec.Convert(fields, v)
}

// Text returns a string field, or "" if it is absent or not a string.
func (d Document) Text(field string) string {
	s, _ := d.Fields[field].(string)
	return s
}

// StringSet returns the members of a set field. Non-string members are
// skipped.
func (d Document) StringSet(field string) []string {
	return stringMembers(d.Fields[field])
}

// HasMember reports whether the set field contains member.
func (d Document) HasMember(field, member string) bool {
	for _, m := range d.StringSet(field) {
		if m == member {
			return true
		}
	}
	return false
}

// Map returns a nested map field.
func (d Document) Map(field string) (map[string]any, bool) {
	m, ok := d.Fields[field].(map[string]any)
	return m, ok
}

// Int64 returns an integer field.
func (d Document) Int64(field string) (int64, bool) {
	return Int64Value(d.Fields[field])
}

// Int64Value converts a normalized numeric field value to int64.
func Int64Value(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// Float64Value converts a normalized numeric field value to float64.
func Float64Value(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

func stringMembers(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		members := make([]string, 0, len(v))
		for _, element := range v {
			if s, ok := element.(string); ok {
				members = append(members, s)
			}
		}
		return members
	}
	return nil
}

func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return map[string]any{}
	}
	return maps.Clone(fields)
}
