package newsletter

// StatDateLayout is the key format of a DailyStat record.
const StatDateLayout = "2006-01-02"

// DailyStat holds per-day signup counters. It is observational only and is
// not required to be consistent with subscriber state.
type DailyStat struct {
	Date               string         `storm:"id" json:"date"`
	TotalSubscriptions int            `json:"totalSubscriptions"`
	ByInterest         map[string]int `json:"byInterest"`
}

// StatsService is the interface that wraps the daily signup counters.
type StatsService interface {
	// RecordSignup increments the counters for the given date. The
	// read-modify-write must be transactional so concurrent signups on the
	// same day do not lose updates.
	RecordSignup(date string, interests []string) error

	// Recent returns the stats of the last n calendar days, oldest first.
	// Days without signups are omitted.
	Recent(n int) ([]DailyStat, error)
}
