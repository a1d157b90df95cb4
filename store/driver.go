package store

import (
	"context"
	"database/sql"
	"time"
)

// Record is one stored key/value row. Writes are last-write-wins; the
// update timestamp records the winning write.
type Record struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

// Driver is the database driver interface. It contains all methods a
// store database driver must implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)
	Migrate(ctx context.Context) error

	// Record model related methods. GetRecord reports absence through
	// the bool, not an error.
	GetRecord(ctx context.Context, key string) ([]byte, bool, error)
	SetRecord(ctx context.Context, key string, value []byte) error
	DeleteRecord(ctx context.Context, key string) error
	// ListRecords returns all records whose key starts with prefix,
	// ordered by key.
	ListRecords(ctx context.Context, prefix string) ([]*Record, error)
}
