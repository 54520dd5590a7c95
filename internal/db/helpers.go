package db

import "time"

// nullableTime maps the zero time to NULL so absent upstream timestamps are
// stored as NULL rather than 0001-01-01.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
