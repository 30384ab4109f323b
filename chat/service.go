// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/beacon-app/beacon/lib/clock"
	"github.com/beacon-app/beacon/lib/ref"
	"github.com/beacon-app/beacon/lib/schema"
	"github.com/beacon-app/beacon/lib/stream"
	"github.com/beacon-app/beacon/lib/syncerr"
	"github.com/beacon-app/beacon/store"
)

// DefaultMaxMessageLength is the message limit, in bytes, used when
// Config.MaxMessageLength is zero.
const DefaultMaxMessageLength = 4096

// Message is one stored chat message.
type Message struct {
	// ID is the store-assigned document id.
	ID       string
	Thread   ref.ThreadKey
	SenderID ref.UserID
	Text     string
	SentAt   time.Time
	// Sequence is the commit sequence, used to order equal SentAt.
	Sequence uint64
}

// ThreadKeyFor returns the key of the thread between a and b. It is the
// same for (a, b) and (b, a).
func ThreadKeyFor(a, b ref.UserID) (ref.ThreadKey, error) {
	return ref.NewThreadKey(a, b)
}

// Config holds the collaborators of a Service.
type Config struct {
	Store store.Store

	// User is the sender of every message and must participate in
	// every thread the service touches.
	User ref.UserID

	// Clock stamps sentAt. Defaults to clock.Real().
	Clock clock.Clock

	// MaxMessageLength limits a trimmed message, in bytes. Zero means
	// DefaultMaxMessageLength.
	MaxMessageLength int

	// Logger receives operational messages. Nil discards them.
	Logger *slog.Logger
}

// Service reads and writes the threads of one user.
type Service struct {
	store     store.Store
	self      ref.UserID
	clock     clock.Clock
	maxLength int
	logger    *slog.Logger
}

// New creates a Service for cfg.User.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("chat: Store is required")
	}
	if cfg.User.IsZero() {
		return nil, errors.New("chat: User is required")
	}
	if cfg.MaxMessageLength < 0 {
		return nil, fmt.Errorf("chat: MaxMessageLength %d is negative", cfg.MaxMessageLength)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	maxLength := cfg.MaxMessageLength
	if maxLength == 0 {
		maxLength = DefaultMaxMessageLength
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:     cfg.Store,
		self:      cfg.User,
		clock:     clk,
		maxLength: maxLength,
		logger:    logger.With("user_id", cfg.User.String()),
	}, nil
}

// Thread returns the key of the caller's thread with peer. Threads are
// two-party, so peer must not be the caller.
func (s *Service) Thread(peer ref.UserID) (ref.ThreadKey, error) {
	if peer == s.self {
		return ref.ThreadKey{}, syncerr.Op("thread", fmt.Errorf("%w: %s is the caller", syncerr.ErrInvalidThread, peer))
	}
	key, err := ThreadKeyFor(s.self, peer)
	if err != nil {
		return ref.ThreadKey{}, syncerr.Op("thread", fmt.Errorf("%w: %w", syncerr.ErrInvalidThread, err))
	}
	return key, nil
}

// Send appends text to the thread. Surrounding whitespace is trimmed
// before the length checks and is not stored.
func (s *Service) Send(ctx context.Context, key ref.ThreadKey, text string) (Message, error) {
	const op = "send"
	if err := s.checkParticipant(op, key); err != nil {
		return Message{}, err
	}
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return Message{}, syncerr.Op(op, syncerr.ErrEmptyMessage)
	case len(text) > s.maxLength:
		return Message{}, syncerr.Op(op, fmt.Errorf("%d bytes, limit %d: %w", len(text), s.maxLength, syncerr.ErrMessageTooLong))
	case !utf8.ValidString(text):
		return Message{}, syncerr.Op(op, syncerr.ErrInvalidMessage)
	}

	doc, err := s.store.Append(ctx, schema.MessagesPath(key), map[string]any{
		schema.FieldSenderID: s.self.String(),
		schema.FieldText:     text,
		schema.FieldSentAt:   clock.UnixMilli(s.clock),
	})
	if err != nil {
		return Message{}, syncerr.Unavailable(op, err)
	}
	message, err := decodeMessage(key, doc)
	if err != nil {
		return Message{}, fmt.Errorf("chat: reading back sent message: %w", err)
	}
	return message, nil
}

// History reads every message of the thread once, in order.
func (s *Service) History(ctx context.Context, key ref.ThreadKey) ([]Message, error) {
	const op = "history"
	if err := s.checkParticipant(op, key); err != nil {
		return nil, err
	}
	documents, err := s.store.List(ctx, schema.MessagesPath(key))
	if err != nil {
		return nil, syncerr.Unavailable(op, err)
	}
	messages := s.decodeAll(key, documents)
	sortMessages(messages)
	return messages, nil
}

// Subscribe streams the thread. The first value is the whole history
// in order; every later value holds only messages not delivered
// before. Values coalesce without loss when the reader lags.
func (s *Service) Subscribe(ctx context.Context, key ref.ThreadKey) (*stream.Subscription[[]Message], error) {
	const op = "subscribe"
	if err := s.checkParticipant(op, key); err != nil {
		return nil, err
	}
	snapshots, err := s.store.SubscribeCollection(ctx, schema.MessagesPath(key), schema.FieldSentAt)
	if err != nil {
		return nil, syncerr.Unavailable(op, err)
	}

	seen := make(map[string]bool)
	first := true
	return stream.Map(snapshots, func(snapshot store.CollectionSnapshot) ([]Message, bool) {
		source := snapshot.Changes
		if snapshot.Initial {
			source = snapshot.Documents
		}
		var fresh []store.Document
		for _, doc := range source {
			if !seen[doc.Path] {
				seen[doc.Path] = true
				fresh = append(fresh, doc)
			}
		}
		messages := s.decodeAll(key, fresh)
		sortMessages(messages)
		if len(messages) == 0 && !first {
			return nil, false
		}
		first = false
		if messages == nil {
			messages = []Message{}
		}
		return messages, true
	}, stream.Concat[Message]), nil
}

func (s *Service) checkParticipant(op string, key ref.ThreadKey) error {
	low, high := key.Participants()
	if key.IsZero() || !key.Includes(s.self) || low == high {
		return syncerr.Op(op, syncerr.ErrInvalidThread)
	}
	return nil
}

func (s *Service) decodeAll(key ref.ThreadKey, documents []store.Document) []Message {
	messages := make([]Message, 0, len(documents))
	for _, doc := range documents {
		message, err := decodeMessage(key, doc)
		if err != nil {
			s.logger.Warn("skipping malformed message", "path", doc.Path, "error", err)
			continue
		}
		messages = append(messages, message)
	}
	return messages
}

func decodeMessage(key ref.ThreadKey, doc store.Document) (Message, error) {
	var record schema.Message
	if err := doc.Decode(&record); err != nil {
		return Message{}, err
	}
	sender, err := ref.ParseUserID(record.SenderID)
	if err != nil {
		return Message{}, fmt.Errorf("sender: %w", err)
	}
	return Message{
		ID:       doc.ID(),
		Thread:   key,
		SenderID: sender,
		Text:     record.Text,
		SentAt:   time.UnixMilli(record.SentAt).UTC(),
		Sequence: doc.Sequence,
	}, nil
}

func sortMessages(messages []Message) {
	slices.SortFunc(messages, func(a, b Message) int {
		if c := a.SentAt.Compare(b.SentAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Sequence, b.Sequence)
	})
}
