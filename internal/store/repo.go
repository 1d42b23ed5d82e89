package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/maypok86/otter"

	"github.com/gateview/gateview/internal/model"
)

const historyCacheTTL = 10 * time.Second

// Repo is the storage contract shared by every subsystem. All writes
// serialize on the single underlying SQLite connection.
type Repo struct {
	db *sql.DB

	// historyCache holds recently computed downsampled history result sets.
	// Raw (full-resolution) queries bypass it.
	historyCache otter.Cache[string, []model.SignalSample]
}

// NewRepo opens (or creates) the database at path and applies migrations.
func NewRepo(path string) (*Repo, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store mkdir: %w", err)
		}
	}
	db, err := OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}
	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store migrate: %w", err)
	}

	cache, err := otter.MustBuilder[string, []model.SignalSample](64).
		Cost(func(_ string, _ []model.SignalSample) uint32 { return 1 }).
		WithTTL(historyCacheTTL).
		Build()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store history cache: %w", err)
	}

	return &Repo{db: db, historyCache: cache}, nil
}

// Close closes the database.
func (r *Repo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- scan helpers ---

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
