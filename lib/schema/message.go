// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "github.com/beacon-app/beacon/lib/ref"

// ThreadsCollection holds one document per thread key; messages live
// in its messages subcollection.
const ThreadsCollection = "threads"

// Message field names.
const (
	FieldSenderID = "senderId"
	FieldText     = "text"
	FieldSentAt   = "sentAt"
)

// MessagesPath returns the collection of messages in a thread.
func MessagesPath(key ref.ThreadKey) string {
	return ThreadsCollection + "/" + key.String() + "/messages"
}

// Message is the typed view of a stored chat message.
type Message struct {
	SenderID string `cbor:"senderId"`
	Text     string `cbor:"text"`
	// SentAt is Unix milliseconds.
	SentAt int64 `cbor:"sentAt"`
}
