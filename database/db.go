// database/db.go - Database Connection (embedded SQLite)
package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var db *gorm.DB

// connPragmas puts the store in WAL mode with a generous busy timeout
// so GUI-thread reads and background-worker writes can interleave
// without surfacing SQLITE_BUSY to callers.
const connPragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// Open opens (creating if needed) the single-file store at path and
// returns a handle. An empty path opens a shared in-memory database,
// used by tests. Callers own the handle; the server process instead
// goes through InitDB/GetDB.
func Open(path string) (*gorm.DB, error) {
	dsn := "file::memory:?cache=shared"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?%s", path, connPragmas)
	}

	handle, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// One logical writer at a time; a single underlying connection
	// keeps every unit of work on the same WAL session.
	sqlDB, err := handle.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return handle, nil
}

// InitDB initializes the global database connection and runs migrations
func InitDB() {
	path := os.Getenv("CERTVAULT_DB_PATH")
	if path == "" {
		path = "./data/certvault.db"
	}

	var err error
	db, err = Open(path)
	if err != nil {
		log.Fatalf("Failed to connect to SQLite database: %v", err)
	}

	log.Println("✅ SQLite database connected successfully")

	if err := RunMigrations(db); err != nil {
		log.Fatalf("❌ Failed to run migrations: %v", err)
	}
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	if db == nil {
		log.Fatal("Database not initialized. Call InitDB() first.")
	}
	return db
}

// CloseDB closes the database connection
func CloseDB() error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %v", err)
	}

	log.Println("Database connection closed")
	return nil
}
