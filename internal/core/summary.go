package core

import "time"

// DailyBalance is the end-of-day accumulated balance of an account.
type DailyBalance struct {
	Day     time.Time
	Balance int64
}

// ImportResult summarizes a batch import.
type ImportResult struct {
	Imported int
	Skipped  int
	Earliest time.Time
}
