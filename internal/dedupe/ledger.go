// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

// Package dedupe keeps a ledger of order events that were already handed to
// the dispatcher, so broker redeliveries do not notify a customer twice.
//
// The dispatcher itself is not idempotent. Consumers claim an event before
// dispatching it; a second claim of the same (orderId, eventType,
// statusVersion) within the TTL fails with ErrDuplicate. Entries expire via
// Badger TTLs.
package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/orderbell/internal/config"
	"github.com/tomtom215/orderbell/internal/logging"
	"github.com/tomtom215/orderbell/internal/metrics"
	"github.com/tomtom215/orderbell/internal/models"
)

var (
	// ErrDuplicate means the event was already claimed.
	ErrDuplicate = errors.New("event already dispatched")

	// ErrClosed means the ledger has been closed.
	ErrClosed = errors.New("dedupe ledger is closed")
)

const (
	keyPrefix  = "claim:"
	defaultTTL = 24 * time.Hour
)

// claim is the value stored per key, kept for debugging.
type claim struct {
	OrderID       string           `json:"orderId"`
	EventType     models.EventType `json:"eventType"`
	StatusVersion int64            `json:"statusVersion"`
	ClaimedAt     time.Time        `json:"claimedAt"`
}

// Ledger is a Badger-backed claim store.
type Ledger struct {
	db         *badger.DB
	ttl        time.Duration
	gcInterval time.Duration

	mu     sync.RWMutex
	closed bool
}

// Open opens the ledger at cfg.Path, or in memory when the path is empty.
func Open(cfg *config.DedupeConfig) (*Ledger, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open dedupe ledger: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	gc := cfg.GCInterval
	if gc <= 0 {
		gc = 10 * time.Minute
	}

	logging.Info().Str("path", cfg.Path).Dur("ttl", ttl).Msg("Dedupe ledger ready")
	return &Ledger{db: db, ttl: ttl, gcInterval: gc}, nil
}

// Key derives the claim key of an event.
func Key(ev *models.NotificationEvent) string {
	sum := sha256.Sum256([]byte(ev.OrderID + "|" + string(ev.EventType) + "|" + strconv.FormatInt(ev.StatusVersion, 10)))
	return hex.EncodeToString(sum[:])
}

func (l *Ledger) key(ev *models.NotificationEvent) []byte {
	return []byte(keyPrefix + Key(ev))
}

// withOpen runs fn under the read lock so Close waits for it to finish.
func (l *Ledger) withOpen(fn func(db *badger.DB) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	return fn(l.db)
}

// Claim records ev, or returns ErrDuplicate if it was claimed within the TTL.
func (l *Ledger) Claim(ctx context.Context, ev *models.NotificationEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := l.key(ev)
	err := l.withOpen(func(db *badger.DB) error {
		return db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(key)
			if err == nil {
				return ErrDuplicate
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			data, err := json.Marshal(claim{
				OrderID:       ev.OrderID,
				EventType:     ev.EventType,
				StatusVersion: ev.StatusVersion,
				ClaimedAt:     time.Now().UTC(),
			})
			if err != nil {
				return err
			}
			return txn.SetEntry(badger.NewEntry(key, data).WithTTL(l.ttl))
		})
	})

	switch {
	case err == nil:
		metrics.RecordDedupeCheck("new")
		return nil
	case errors.Is(err, ErrDuplicate), errors.Is(err, badger.ErrConflict):
		// A conflict means a concurrent claim of the same key committed first.
		metrics.RecordDedupeCheck("duplicate")
		logging.Debug().
			Str("order_id", ev.OrderID).
			Str("event_type", string(ev.EventType)).
			Int64("status_version", ev.StatusVersion).
			Msg("Duplicate order event skipped")
		return ErrDuplicate
	case errors.Is(err, ErrClosed):
		metrics.RecordDedupeCheck("error")
		return ErrClosed
	default:
		metrics.RecordDedupeCheck("error")
		return fmt.Errorf("claim event: %w", err)
	}
}

// Release forgets a claim so the event can be dispatched again.
func (l *Ledger) Release(ctx context.Context, ev *models.NotificationEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.withOpen(func(db *badger.DB) error {
		return db.Update(func(txn *badger.Txn) error {
			return txn.Delete(l.key(ev))
		})
	})
}

// Seen reports whether ev currently holds a claim.
func (l *Ledger) Seen(ev *models.NotificationEvent) (bool, error) {
	var seen bool
	err := l.withOpen(func(db *badger.DB) error {
		return db.View(func(txn *badger.Txn) error {
			_, err := txn.Get(l.key(ev))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			seen = true
			return nil
		})
	})
	return seen, err
}

// Serve runs value log GC until ctx is cancelled.
func (l *Ledger) Serve(ctx context.Context) error {
	ticker := time.NewTicker(l.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.runGC()
		}
	}
}

// String implements fmt.Stringer for the supervisor.
func (l *Ledger) String() string {
	return "dedupe-ledger-gc"
}

func (l *Ledger) runGC() {
	_ = l.withOpen(func(db *badger.DB) error {
		for {
			// Rewrite value log files that are at least half garbage.
			err := db.RunValueLogGC(0.5)
			if err == nil {
				continue
			}
			if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrGCInMemoryMode) {
				logging.Warn().Err(err).Msg("Dedupe ledger GC failed")
			}
			return nil
		}
	})
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}
