// Package store is the ledger store: durable rows for accounts, listings,
// unlocks, interests, referrals and swipe receipts. It holds no business
// rules. Every wallet and quota write in the system goes through the
// conditional single-statement updates in this package.
package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("record not found")

// DateLayout is the calendar-day format of Account.QuotaResetOn.
const DateLayout = "2006-01-02"

// Store wraps a gorm handle, which may be a transaction.
type Store struct {
	db *gorm.DB

	// Clock defines "now" and therefore "today" for lazy quota resets.
	Clock func() time.Time
}

// New returns a Store over db using the wall clock.
func New(db *gorm.DB) *Store {
	return &Store{db: db, Clock: time.Now}
}

// DB exposes the underlying handle for read-only query building.
func (s *Store) DB() *gorm.DB { return s.db }

// Today is the calendar day the quota counters are measured against.
func (s *Store) Today() string {
	return s.Clock().Format(DateLayout)
}

// Transaction runs fn against a Store bound to a single database
// transaction. Returning an error from fn rolls every write back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, Clock: s.Clock})
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
