// Package history keeps an optional local journal of submitted searches.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const DefaultDBFile = "retrieval-history.sqlite3"
const errDBClientNil = "db client is nil"

// Outcome values stored in Entry.Outcome.
const (
	OutcomeMatched  = "matched"
	OutcomeEmpty    = "empty"
	OutcomeNotFound = "not-found"
	OutcomeFailed   = "failed"
	OutcomeStale    = "stale"
)

// Source values stored in Entry.Source.
const (
	SourceMicrophone = "microphone"
	SourceFile       = "file"
	SourceURL        = "url"
)

type Entry struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Kind      string    `gorm:"index:idx_entry_kind" json:"kind"`
	Source    string    `json:"source"`
	Query     string    `json:"query"`
	Epoch     uint64    `json:"epoch"`
	Outcome   string    `gorm:"index:idx_entry_outcome" json:"outcome"`
	Items     int       `json:"items"`
	TopName   string    `json:"top_name"`
	TopScore  *float64  `json:"top_score"`
	ElapsedMs int64     `json:"elapsed_ms"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `gorm:"index:idx_entry_created" json:"created_at"`
}

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Entry{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Record stores e, filling in ID and CreatedAt when empty.
func (c *DBClient) Record(e *Entry) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if err := c.DB.Create(e).Error; err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries first. kind filters when non-empty.
func (c *DBClient) Recent(limit int, kind string) ([]Entry, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	if limit <= 0 {
		limit = 20
	}

	q := c.DB.Order("created_at DESC").Limit(limit)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}

	var entries []Entry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	return entries, nil
}

// CountByOutcome returns how many searches ended in each outcome.
func (c *DBClient) CountByOutcome() (map[string]int64, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}

	var rows []struct {
		Outcome string
		Count   int64
	}
	if err := c.DB.Model(&Entry{}).Select("outcome, COUNT(*) AS count").Group("outcome").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("counting outcomes: %w", err)
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Outcome] = r.Count
	}
	return out, nil
}

// Clear deletes every entry.
func (c *DBClient) Clear() error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	if err := c.DB.Where("1 = 1").Delete(&Entry{}).Error; err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}
