// Package store is the durable log store: an append-only table of
// activity records plus the caller registry, with the aggregation
// queries the analytics service needs.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/apperr"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/retry"
)

// Store wraps a GORM connection and applies the retry harness to every
// query and insert.
type Store struct {
	db       *gorm.DB
	retryCfg retry.Config
}

// Connect opens a GORM connection using a PostgreSQL DSN and auto-migrates
// the core tables.
func Connect(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("database DSN is required")
	}
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil, errors.New("database DSN must be a postgres:// or postgresql:// URL")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{PrepareStmt: true})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Caller{}, &ActivityRecord{}); err != nil {
		return nil, err
	}

	return &Store{db: db, retryCfg: retry.Default}, nil
}

// wrapDBErr classifies a raw GORM/driver error as transient or fatal so
// callers upstream (the ingestion pipeline in particular) know whether
// retrying is worthwhile.
func wrapDBErr(err error) error {
	if err == nil {
		return nil
	}
	if retry.IsTransient(err) {
		return fmt.Errorf("%w: %v", apperr.ErrStorageTransient, err)
	}
	return fmt.Errorf("%w: %v", apperr.ErrStorageFatal, err)
}

// BulkInsert commits records as a single statement, retried per the Retry
// Harness. The returned error is already classified via wrapDBErr, so
// callers can check errors.Is(err, apperr.ErrStorageTransient) to decide
// whether to divert into the overflow buffer.
func (s *Store) BulkInsert(records []ActivityRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := retry.Do(s.retryCfg, func() error {
		return s.db.Create(&records).Error
	})
	return wrapDBErr(err)
}

// DailyUsageRow is one calendar day's aggregate for a single caller. The
// caller id is carried for sorting and cache bookkeeping but is not part
// of the documented response shape, so it stays out of the JSON.
type DailyUsageRow struct {
	CallerID   string    `json:"-"`
	Date       time.Time `json:"date"`
	Count      int64     `json:"count"`
	AvgElapsed float64   `json:"avg_elapsed"`
	Errors     int64     `json:"errors"`
}

// DailyUsage returns per-caller, per-day rows for activity in
// [now-days, now], ordered by (date desc, count desc). No cross-caller
// summation is performed; per-caller rows are preserved.
func (s *Store) DailyUsage(callerID string, days int) ([]DailyUsageRow, error) {
	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)

	type row struct {
		Date       time.Time
		Count      int64
		AvgElapsed float64
		Errors     int64
	}
	var rows []row

	err := retry.Do(s.retryCfg, func() error {
		rows = nil
		return s.db.Model(&ActivityRecord{}).
			Select("date_trunc('day', timestamp) as date, count(*) as count, avg(elapsed_ms) as avg_elapsed, count(*) filter (where status >= 400) as errors").
			Where("caller_id = ? AND timestamp >= ?", callerID, since).
			Group("date_trunc('day', timestamp)").
			Order("date desc, count desc").
			Find(&rows).Error
	})
	if err != nil {
		return nil, wrapDBErr(err)
	}

	out := make([]DailyUsageRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, DailyUsageRow{
			CallerID:   callerID,
			Date:       r.Date,
			Count:      r.Count,
			AvgElapsed: r.AvgElapsed,
			Errors:     r.Errors,
		})
	}
	return out, nil
}

// ActiveCallerIDs returns the CallerID of every active caller, used by the
// analytics service to fan DailyUsage out across all callers.
func (s *Store) ActiveCallerIDs() ([]string, error) {
	var ids []string
	err := retry.Do(s.retryCfg, func() error {
		ids = nil
		return s.db.Model(&Caller{}).Where("active = ?", true).Pluck("caller_id", &ids).Error
	})
	if err != nil {
		return nil, wrapDBErr(err)
	}
	return ids, nil
}

// TopCallerRow is one caller's aggregate over the top-callers window.
type TopCallerRow struct {
	CallerID   string    `json:"caller_id"`
	Count      int64     `json:"count"`
	AvgElapsed float64   `json:"avg_elapsed"`
	Errors     int64     `json:"errors"`
	LastAccess time.Time `json:"last_access"`
}

// TopCallers aggregates over [now-hours, now], grouped by caller, ordered
// by count descending, limited to limit rows. The second argument is
// hours, not days.
func (s *Store) TopCallers(limit, hours int) ([]TopCallerRow, error) {
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	var rows []TopCallerRow
	err := retry.Do(s.retryCfg, func() error {
		rows = nil
		return s.db.Model(&ActivityRecord{}).
			Select("caller_id, count(*) as count, avg(elapsed_ms) as avg_elapsed, count(*) filter (where status >= 400) as errors, max(timestamp) as last_access").
			Where("timestamp >= ?", since).
			Group("caller_id").
			Order("count desc").
			Limit(limit).
			Find(&rows).Error
	})
	if err != nil {
		return nil, wrapDBErr(err)
	}
	return rows, nil
}

// DeleteOlderThan bulk-deletes records older than the retention threshold
// and returns the affected count.
func (s *Store) DeleteOlderThan(days int) (int64, error) {
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	var affected int64
	err := retry.Do(s.retryCfg, func() error {
		tx := s.db.Where("timestamp < ?", cutoff).Delete(&ActivityRecord{})
		if tx.Error == nil {
			affected = tx.RowsAffected
		}
		return tx.Error
	})
	if err != nil {
		return 0, wrapDBErr(err)
	}
	return affected, nil
}

// CreateCaller inserts a new caller row; a unique-constraint violation on
// email is surfaced as apperr.ErrConflict.
func (s *Store) CreateCaller(c *Caller) error {
	err := retry.Do(s.retryCfg, func() error {
		return s.db.Create(c).Error
	})
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "duplicate") || strings.Contains(strings.ToLower(err.Error()), "unique constraint") {
		return apperr.ErrConflict
	}
	return wrapDBErr(err)
}

// CallerByAPIKeyHash and friends are intentionally omitted: bcrypt hashes
// cannot be looked up by equality, so verification loads candidate rows by
// a separate index (e.g. CallerID) and compares in the auth package.

// CallerByCallerID loads a caller by its opaque external id.
func (s *Store) CallerByCallerID(callerID string) (*Caller, error) {
	var c Caller
	err := retry.Do(s.retryCfg, func() error {
		return s.db.Where("caller_id = ?", callerID).First(&c).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, wrapDBErr(err)
	}
	return &c, nil
}

// CallerByEmail loads a caller by email. Registration does not call it:
// a duplicate email surfaces from CreateCaller as apperr.ErrConflict.
func (s *Store) CallerByEmail(email string) (*Caller, error) {
	var c Caller
	err := retry.Do(s.retryCfg, func() error {
		return s.db.Where("email = ?", email).First(&c).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, wrapDBErr(err)
	}
	return &c, nil
}

// TouchLastSeen updates a caller's last-seen timestamp, best-effort.
func (s *Store) TouchLastSeen(callerRowID uint) error {
	err := retry.Do(s.retryCfg, func() error {
		return s.db.Model(&Caller{}).Where("id = ?", callerRowID).Update("last_seen_at", time.Now()).Error
	})
	return wrapDBErr(err)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
