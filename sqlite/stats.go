package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/caribhq/newsletter"
)

type statsService struct {
	db *DB
}

// NewStatsService returns a sqlite-backed daily stats store.
func NewStatsService(db *DB) newsletter.StatsService {
	return &statsService{
		db: db,
	}
}

// RecordSignup increments the counters for one date. The read-modify-write
// runs inside a transaction so concurrent signups on the same day do not lose
// updates.
func (ss *statsService) RecordSignup(date string, interests []string) error {
	tx, err := ss.db.sqlDB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var (
		total      int
		byInterest string
	)
	counts := make(map[string]int)
	err = tx.QueryRow("SELECT total_subscriptions, by_interest FROM daily_stats WHERE date = ?", date).
		Scan(&total, &byInterest)
	switch {
	case err == nil:
		if err := json.Unmarshal([]byte(byInterest), &counts); err != nil {
			return fmt.Errorf("failed to decode by_interest: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return fmt.Errorf("failed to load stat for %s: %w", date, err)
	}

	total++
	for _, interest := range interests {
		counts[interest]++
	}
	encoded, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to encode by_interest: %w", err)
	}

	if _, err := tx.Exec("INSERT OR REPLACE INTO daily_stats (date, total_subscriptions, by_interest) VALUES (?, ?, ?)",
		date, total, string(encoded)); err != nil {
		return fmt.Errorf("failed to save stat for %s: %w", date, err)
	}

	return tx.Commit()
}

// Recent returns the stats of the last n days, oldest first.
func (ss *statsService) Recent(n int) ([]newsletter.DailyStat, error) {
	since := time.Now().UTC().AddDate(0, 0, -(n - 1)).Format(newsletter.StatDateLayout)

	rows, err := ss.db.sqlDB.Query(
		"SELECT date, total_subscriptions, by_interest FROM daily_stats WHERE date >= ? ORDER BY date", since)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var stats []newsletter.DailyStat
	for rows.Next() {
		var (
			stat       newsletter.DailyStat
			byInterest string
		)
		if err := rows.Scan(&stat.Date, &stat.TotalSubscriptions, &byInterest); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(byInterest), &stat.ByInterest); err != nil {
			return nil, fmt.Errorf("failed to decode by_interest: %w", err)
		}
		stats = append(stats, stat)
	}

	return stats, rows.Err()
}
