// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"strings"
)

// Join builds a path from segments.
func Join(segments ...string) string { return strings.Join(segments, "/") }

// SplitDocumentPath returns the collection and id of a document path.
func SplitDocumentPath(path string) (collection, id string, err error) {
	segments, err := splitSegments(path)
	if err != nil {
		return "", "", err
	}
	if len(segments)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q is a collection path, want a document path", ErrInvalidPath, path)
	}
	last := len(segments) - 1
	return strings.Join(segments[:last], "/"), segments[last], nil
}

// ValidateCollectionPath checks that path names a collection.
func ValidateCollectionPath(path string) error {
	segments, err := splitSegments(path)
	if err != nil {
		return err
	}
	if len(segments)%2 != 1 {
		return fmt.Errorf("%w: %q is a document path, want a collection path", ErrInvalidPath, path)
	}
	return nil
}

func splitSegments(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	segments := strings.Split(path, "/")
	for _, segment := range segments {
		if segment == "" || segment == "." || segment == ".." {
			return nil, fmt.Errorf("%w: %q has an empty or relative segment", ErrInvalidPath, path)
		}
	}
	return segments, nil
}
