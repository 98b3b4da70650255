// Package testdb provides an isolated gorm database for tests.
//
// Each call to New opens a fresh SQLite file in the test's temp directory and
// applies models.AutoMigrate, so tests exercise the real repositories and
// transactions without an external server.
//
//	func TestSomething(t *testing.T) {
//	    tdb := testdb.New(t)
//	    member := tdb.Member(t, "Ada", "Lovelace")
//	    item := tdb.Item(t, "Dune", true)
//	    // use tdb.DB or tdb.Repos
//	}
package testdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/persistence/repositories"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB bundles the connection and the repositories built on it
type TestDB struct {
	DB    *gorm.DB
	Repos *repositories.Repositories
}

// New creates a migrated database that is closed when the test ends
func New(t *testing.T) *TestDB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "library.db")
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on&_busy_timeout=5000"), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("testdb: failed to open: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("testdb: failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("testdb: migration failed: %v", err)
	}

	return &TestDB{DB: db, Repos: repositories.New(db)}
}

// Context returns a context cancelled when the test ends
func (tdb *TestDB) Context(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
