// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// record always produces the same bytes.
var encMode cbor.EncMode

// decMode decodes untyped maps as map[string]any and ignores unknown
// struct fields.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Identifier types (ref.UserID) encode as text via MarshalText.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is a raw encoded CBOR value.
type RawMessage = cbor.RawMessage

// Normalize returns a deep copy of fields in the shape they have after
// a trip through storage: nested maps become map[string]any, slices
// become []any, non-negative integers become uint64, negative integers
// int64, and floats float64. Callers get the same value types whether
// a record came from memory or from disk.
func Normalize(fields map[string]any) (map[string]any, error) {
	if fields == nil {
		return map[string]any{}, nil
	}
	data, err := Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("codec: normalizing fields: %w", err)
	}
	var normalized map[string]any
	if err := Unmarshal(data, &normalized); err != nil {
		return nil, fmt.Errorf("codec: normalizing fields: %w", err)
	}
	if normalized == nil {
		normalized = map[string]any{}
	}
	return normalized, nil
}

// Convert decodes src into dst through the CBOR representation of src.
// It is used to read an untyped record into a tagged struct.
func Convert(src, dst any) error {
	data, err := Marshal(src)
	if err != nil {
		return fmt.Errorf("codec: encoding %T: %w", src, err)
	}
	if err := Unmarshal(data, dst); err != nil {
		return fmt.Errorf("codec: decoding into %T: %w", dst, err)
	}
	return nil
}
