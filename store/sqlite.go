// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/beacon-app/beacon/lib/codec"
	"github.com/beacon-app/beacon/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	fields     BLOB NOT NULL,
	seq        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_by_collection ON documents (collection, path);
CREATE UNIQUE INDEX IF NOT EXISTS documents_by_seq ON documents (seq);
`

// SQLiteConfig configures an SQLiteStore.
type SQLiteConfig struct {
	Config

	// Path is the database file.
	Path string

	// PoolSize is the connection pool size. See sqlitepool.Config.
	PoolSize int

	// PollInterval, if positive, makes the store look for commits by
	// other processes sharing the file and deliver them to
	// subscribers. Zero disables it.
	PollInterval time.Duration
}

// SQLiteStore is a Store persisted in one SQLite table. Each document's
// fields are stored as a CBOR blob; every commit takes the next value
// of a table-wide sequence inside an IMMEDIATE transaction, so several
// processes can share one file.
type SQLiteStore struct {
	*core
	db *sqliteBackend

	stopPoll context.CancelFunc
	pollDone chan struct{}
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at cfg.Path.
func OpenSQLite(cfg SQLiteConfig) (*SQLiteStore, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	backend := &sqliteBackend{pool: pool}
	s := &SQLiteStore{core: newCore(backend, cfg.Config), db: backend}

	if cfg.PollInterval > 0 {
		cursor, err := backend.maxSequence(context.Background())
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("store: reading commit sequence: %w", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		s.stopPoll = cancel
		s.pollDone = make(chan struct{})
		go s.pollExternal(ctx, cfg.PollInterval, cursor)
	}
	return s, nil
}

// Close stops external polling, ends subscriptions, and closes the
// pool.
func (s *SQLiteStore) Close() error {
	if s.stopPoll != nil {
		s.stopPoll()
		<-s.pollDone
	}
	return s.core.Close()
}

// pollExternal publishes commits made by other processes. Commits this
// process made are already published; the broker drops them by
// sequence.
func (s *SQLiteStore) pollExternal(ctx context.Context, interval time.Duration, cursor uint64) {
	defer close(s.pollDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(interval):
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		documents, err := s.db.since(ctx, cursor)
		if err != nil {
			s.mu.Unlock()
			if ctx.Err() == nil {
				s.logger.Warn("polling for external commits failed", "error", err)
			}
			continue
		}
		for _, doc := range documents {
			s.broker.publish(doc)
			cursor = max(cursor, doc.Sequence)
		}
		s.mu.Unlock()
	}
}

type sqliteBackend struct {
	pool *sqlitepool.Pool
}

func (b *sqliteBackend) get(ctx context.Context, documentPath string) (Document, error) {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return Document{}, err
	}
	defer b.pool.Put(conn)
	return loadDocument(conn, documentPath)
}

func (b *sqliteBackend) mutate(ctx context.Context, documentPath string, fn mutateFunc) (doc Document, written bool, err error) {
	collection, _, err := SplitDocumentPath(documentPath)
	if err != nil {
		return Document{}, false, err
	}

	conn, err := b.pool.Take(ctx)
	if err != nil {
		return Document{}, false, err
	}
	defer b.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return Document{}, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer endTransaction(&err)

	current, err := loadDocument(conn, documentPath)
	if err != nil {
		return Document{}, false, err
	}
	fields, write, err := fn(current)
	if err != nil || !write {
		return current, false, err
	}

	var sequence uint64
	err = sqlitex.Execute(conn, "SELECT COALESCE(MAX(seq), 0) + 1 FROM documents", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			sequence = uint64(stmt.ColumnInt64(0))
			return nil
		},
	})
	if err != nil {
		return Document{}, false, fmt.Errorf("allocating sequence: %w", err)
	}

	blob, err := codec.Marshal(fields)
	if err != nil {
		return Document{}, false, fmt.Errorf("encoding fields: %w", err)
	}
	err = sqlitex.Execute(conn, `
		INSERT INTO documents (path, collection, fields, seq) VALUES (?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET fields = excluded.fields, seq = excluded.seq`,
		&sqlitex.ExecOptions{Args: []any{documentPath, collection, blob, int64(sequence)}})
	if err != nil {
		return Document{}, false, fmt.Errorf("writing document: %w", err)
	}
	return Document{Path: documentPath, Exists: true, Fields: fields, Sequence: sequence}, true, nil
}

func (b *sqliteBackend) scan(ctx context.Context, collection string) ([]Document, error) {
	return b.query(ctx,
		"SELECT path, fields, seq FROM documents WHERE collection = ? ORDER BY path",
		collection)
}

// since returns every document committed after sequence, in commit
// order.
func (b *sqliteBackend) since(ctx context.Context, sequence uint64) ([]Document, error) {
	return b.query(ctx,
		"SELECT path, fields, seq FROM documents WHERE seq > ? ORDER BY seq",
		int64(sequence))
}

func (b *sqliteBackend) maxSequence(ctx context.Context) (uint64, error) {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer b.pool.Put(conn)

	var sequence uint64
	err = sqlitex.Execute(conn, "SELECT COALESCE(MAX(seq), 0) FROM documents", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			sequence = uint64(stmt.ColumnInt64(0))
			return nil
		},
	})
	return sequence, err
}

func (b *sqliteBackend) query(ctx context.Context, query string, args ...any) ([]Document, error) {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer b.pool.Put(conn)

	var documents []Document
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			fields, err := decodeFields(stmt, 1)
			if err != nil {
				return fmt.Errorf("document %s: %w", stmt.ColumnText(0), err)
			}
			documents = append(documents, Document{
				Path:     stmt.ColumnText(0),
				Exists:   true,
				Fields:   fields,
				Sequence: uint64(stmt.ColumnInt64(2)),
			})
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return documents, nil
}

func (b *sqliteBackend) close() error { return b.pool.Close() }

func loadDocument(conn *sqlite.Conn, documentPath string) (Document, error) {
	doc := Document{Path: documentPath}
	err := sqlitex.Execute(conn, "SELECT fields, seq FROM documents WHERE path = ?", &sqlitex.ExecOptions{
		Args: []any{documentPath},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			fields, err := decodeFields(stmt, 0)
			if err != nil {
				return err
			}
			doc.Exists = true
			doc.Fields = fields
			doc.Sequence = uint64(stmt.ColumnInt64(1))
			return nil
		},
	})
	if err != nil {
		return Document{}, fmt.Errorf("reading %s: %w", documentPath, err)
	}
	return doc, nil
}

func decodeFields(stmt *sqlite.Stmt, column int) (map[string]any, error) {
	blob := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, blob)

	var fields map[string]any
	if err := codec.Unmarshal(blob, &fields); err != nil {
		return nil, fmt.Errorf("decoding fields: %w", err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}
