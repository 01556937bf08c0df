// Package testutil builds throwaway SQLite ledgers and fixtures for tests.
package testutil

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sujalbistaa/kiwiblue/internal/db"
	"github.com/sujalbistaa/kiwiblue/internal/models"
)

var phoneSeq atomic.Int64

// NewDB opens a migrated SQLite database in the test's temp dir.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.Init("sqlite://" + filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(database))
	t.Cleanup(func() {
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return database
}

// Seeker creates an active seeker. Quota counters start fresh for today.
func Seeker(t *testing.T, database *gorm.DB, mutate ...func(*models.Account)) *models.Account {
	t.Helper()
	return account(t, database, models.RoleSeeker, mutate)
}

// Poster creates an active poster with an empty wallet unless mutated.
func Poster(t *testing.T, database *gorm.DB, mutate ...func(*models.Account)) *models.Account {
	t.Helper()
	return account(t, database, models.RolePoster, mutate)
}

func account(t *testing.T, database *gorm.DB, role models.Role, mutate []func(*models.Account)) *models.Account {
	a := &models.Account{
		Role:   role,
		Name:   string(role),
		Phone:  fmt.Sprintf("021%07d", phoneSeq.Add(1)),
		Active: true,
	}
	for _, m := range mutate {
		m(a)
	}
	require.NoError(t, database.Create(a).Error)
	return a
}

// Job creates an open job listing owned by poster.
func Job(t *testing.T, database *gorm.DB, poster *models.Account, mutate ...func(*models.Listing)) *models.Listing {
	t.Helper()
	l := &models.Listing{
		OwnerID: poster.ID,
		Kind:    models.KindJob,
		Title:   "Carpenter wanted",
		Wage:    "$30/hr",
		Status:  models.StatusOpen,
	}
	for _, m := range mutate {
		m(l)
	}
	require.NoError(t, database.Create(l).Error)
	return l
}

// Profile creates an available seeker profile listing.
func Profile(t *testing.T, database *gorm.DB, seeker *models.Account, mutate ...func(*models.Listing)) *models.Listing {
	t.Helper()
	l := &models.Listing{
		OwnerID:         seeker.ID,
		Kind:            models.KindProfile,
		Title:           "Painter",
		Wage:            "$28/hr",
		Status:          models.StatusAvailable,
		ExperienceYears: 1,
	}
	for _, m := range mutate {
		m(l)
	}
	require.NoError(t, database.Create(l).Error)
	return l
}

// Reload re-reads an account without touching its quota.
func Reload(t *testing.T, database *gorm.DB, id uint) *models.Account {
	t.Helper()
	var a models.Account
	require.NoError(t, database.First(&a, id).Error)
	return &a
}

// ReloadListing re-reads a listing.
func ReloadListing(t *testing.T, database *gorm.DB, id uint) *models.Listing {
	t.Helper()
	var l models.Listing
	require.NoError(t, database.First(&l, id).Error)
	return &l
}

// Count returns the number of rows in model's table matching the query.
func Count(t *testing.T, database *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := database.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

// FixedClock returns a clock frozen at ts.
func FixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}
