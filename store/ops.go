// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"slices"
)

type opKind int

const (
	opSet opKind = iota
	opDelete
	opAddToSet
	opRemoveFromSet
)

// FieldOp is one field mutation applied by Update.
type FieldOp struct {
	kind    opKind
	field   string
	value   any
	members []string
}

// Set replaces a top-level field.
func Set(field string, value any) FieldOp {
	return FieldOp{kind: opSet, field: field, value: value}
}

// Delete removes a top-level field.
func Delete(field string) FieldOp {
	return FieldOp{kind: opDelete, field: field}
}

// AddToSet adds members to a string set field, creating it if absent.
// Members already present are left in place.
func AddToSet(field string, members ...string) FieldOp {
	return FieldOp{kind: opAddToSet, field: field, members: members}
}

// RemoveFromSet removes members from a string set field. Absent
// members are ignored.
func RemoveFromSet(field string, members ...string) FieldOp {
	return FieldOp{kind: opRemoveFromSet, field: field, members: members}
}

func (op FieldOp) String() string {
	switch op.kind {
	case opSet:
		return "set " + op.field
	case opDelete:
		return "delete " + op.field
	case opAddToSet:
		return fmt.Sprintf("add %v to %s", op.members, op.field)
	case opRemoveFromSet:
		return fmt.Sprintf("remove %v from %s", op.members, op.field)
	}
	return "unknown op"
}

// applyOps returns a copy of fields with ops applied in order.
func applyOps(fields map[string]any, ops []FieldOp) (map[string]any, error) {
	result := cloneFields(fields)
	for _, op := range ops {
		if op.field == "" {
			return nil, fmt.Errorf("store: %s: empty field name", op)
		}
		switch op.kind {
		case opSet:
			result[op.field] = op.value
		case opDelete:
			delete(result, op.field)
		case opAddToSet, opRemoveFromSet:
			current, present := result[op.field]
			if present && current != nil && !isStringSet(current) {
				return nil, fmt.Errorf("store: %s: field holds %T, not a set", op, current)
			}
			members := slices.Clone(stringMembers(current))
			if op.kind == opAddToSet {
				for _, member := range op.members {
					if !slices.Contains(members, member) {
						members = append(members, member)
					}
				}
			} else {
				members = slices.DeleteFunc(members, func(m string) bool {
					return slices.Contains(op.members, m)
				})
			}
			if members == nil {
				members = []string{}
			}
			result[op.field] = members
		}
	}
	return result, nil
}

func isStringSet(value any) bool {
	switch v := value.(type) {
	case []string:
		return true
	case []any:
		for _, element := range v {
			if _, ok := element.(string); !ok {
				return false
			}
		}
		return true
	}
	return false
}
