// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the stored record layout shared by the engine
// packages: where user records and chat messages live, the names of
// their fields, and typed views decoded from store documents.
//
// A user record at users/{id}:
//
//	name             display name
//	username         handle, unique and case-sensitive
//	email            contact address
//	location         {latitude, longitude, updatedAt} or absent
//	connections      set of user ids
//	pendingRequests  set of user ids with a request waiting on this user
//
// A chat message at threads/{threadKey}/messages/{id}:
//
//	senderId  user id
//	text      message body
//	sentAt    Unix milliseconds from the sender's clock
package schema
