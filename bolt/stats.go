package bolt

import (
	"time"

	"github.com/asdine/storm/v3"
	"github.com/go-errors/errors"

	"github.com/caribhq/newsletter"
)

type statsService struct {
	db *DB
}

// NewStatsService returns a storm-backed daily stats store.
func NewStatsService(db *DB) newsletter.StatsService {
	return &statsService{
		db: db,
	}
}

// RecordSignup increments the counters for one date. The read-modify-write
// runs inside a storm transaction so concurrent signups on the same day do
// not lose updates.
func (ss *statsService) RecordSignup(date string, interests []string) error {
	tx, err := ss.db.stormDB.Begin(true)
	if err != nil {
		return errors.Errorf("failed to begin tx: %v", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var stat newsletter.DailyStat
	switch err := tx.One("Date", date, &stat); {
	case err == nil:
	case errors.Is(err, storm.ErrNotFound):
		stat = newsletter.DailyStat{Date: date}
	default:
		return errors.Errorf("failed to load stat for %s: %v", date, err)
	}

	if stat.ByInterest == nil {
		stat.ByInterest = make(map[string]int)
	}
	stat.TotalSubscriptions++
	for _, interest := range interests {
		stat.ByInterest[interest]++
	}

	if err := tx.Save(&stat); err != nil {
		return errors.Errorf("failed to save stat for %s: %v", date, err)
	}

	return tx.Commit()
}

// Recent returns the stats of the last n days, oldest first. Days without
// signups have no record and are skipped.
func (ss *statsService) Recent(n int) ([]newsletter.DailyStat, error) {
	now := time.Now().UTC()

	var stats []newsletter.DailyStat
	for i := n - 1; i >= 0; i-- {
		date := now.AddDate(0, 0, -i).Format(newsletter.StatDateLayout)

		var stat newsletter.DailyStat
		if err := ss.db.stormDB.One("Date", date, &stat); err != nil {
			if errors.Is(err, storm.ErrNotFound) {
				continue
			}
			return nil, errors.Errorf("failed to load stat for %s: %v", date, err)
		}
		stats = append(stats, stat)
	}

	return stats, nil
}
