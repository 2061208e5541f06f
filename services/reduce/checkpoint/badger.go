// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// keyPrefix namespaces checkpoint keys: ckpt/<run>/<seq>.
const keyPrefix = "ckpt/"

// ErrNotFound indicates no checkpoint exists for a run and sequence number.
var ErrNotFound = errors.New("checkpoint not found")

// BadgerConfig configures the badger-backed recorder.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in memory. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// ReadOnly opens an existing database for inspection.
	ReadOnly bool

	// Logger receives badger's internal log lines. Nil silences them.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns a persistent configuration at path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{Path: path, SyncWrites: true}
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Badger stores checkpoints in a badger database, one JSON value per oracle
// call, so a run's history can be listed and any state recovered later.
//
// Thread Safety: safe for concurrent use.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (creating if needed) a checkpoint database.
//
// Outputs:
//   - *Badger: The recorder. Caller must call Close when done.
//   - error: Non-nil if the path is missing or the database cannot be opened.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent checkpoint database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if !cfg.ReadOnly {
			if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
				return nil, fmt.Errorf("create checkpoint database directory %s: %w", cfg.Path, err)
			}
		}
		opts = badger.DefaultOptions(cfg.Path).WithReadOnly(cfg.ReadOnly)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database: %w", err)
	}
	return &Badger{db: db}, nil
}

// Close closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

func checkpointKey(runID string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s/%08d", keyPrefix, runID, seq))
}

// Record implements Recorder.
func (b *Badger) Record(ctx context.Context, c Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.RunID == "" {
		return errors.New("checkpoint has no run id")
	}
	value, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(checkpointKey(c.RunID, c.Seq), value)
	})
}

// Get returns one checkpoint, files included.
func (b *Badger) Get(runID string, seq int) (Checkpoint, error) {
	var c Checkpoint
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(checkpointKey(runID, seq))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: run %s seq %d", ErrNotFound, runID, seq)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &c)
		})
	})
	return c, err
}

// List returns the checkpoints of a run in sequence order. File contents
// are omitted; use Get for them.
func (b *Badger) List(runID string) ([]Checkpoint, error) {
	var out []Checkpoint
	prefix := []byte(keyPrefix + runID + "/")
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 64, Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var c Checkpoint
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &c)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			c.Files = nil
			out = append(out, c)
		}
		return nil
	})
	return out, err
}

// Runs returns the run IDs present in the database, sorted.
func (b *Badger) Runs() ([]string, error) {
	seen := make(map[string]bool)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			rest := strings.TrimPrefix(string(it.Item().Key()), keyPrefix)
			if i := strings.LastIndexByte(rest, '/'); i > 0 {
				seen[rest[:i]] = true
			}
		}
		return nil
	})
	runs := make([]string, 0, len(seen))
	for r := range seen {
		runs = append(runs, r)
	}
	sort.Strings(runs)
	return runs, err
}
