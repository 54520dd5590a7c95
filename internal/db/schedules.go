package db

import (
	"context"
	"fmt"
	"time"

	"pagerduty-analytics/internal/models"
)

// UpsertSchedule inserts a schedule or updates its mutable fields by upstream
// ID. Shifts are written separately via ReplaceScheduleShifts once member
// users have been resolved.
func (d *DB) UpsertSchedule(ctx context.Context, s models.Schedule) (int64, error) {
	query := `
	INSERT INTO schedules (pagerduty_id, name, time_zone)
	VALUES ($1, $2, $3)
	ON CONFLICT (pagerduty_id) DO UPDATE
	SET name = EXCLUDED.name,
	    time_zone = EXCLUDED.time_zone
	RETURNING id`

	var id int64
	err := d.Pool.QueryRow(ctx, query, s.PagerDutyID, s.Name, s.TimeZone).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert schedule %s: %w", s.PagerDutyID, err)
	}
	return id, nil
}

// ResolvedShift is a schedule shift whose member has been translated to an
// internal user ID.
type ResolvedShift struct {
	UserID int64
	Start  time.Time
	End    time.Time
}

// ReplaceScheduleShifts rewrites the shift set of a schedule wholesale inside
// one transaction, so readers never observe a half-replaced set.
func (d *DB) ReplaceScheduleShifts(ctx context.Context, scheduleID int64, shifts []ResolvedShift) error {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin shift rewrite for schedule %d: %w", scheduleID, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM schedule_shifts WHERE schedule_id = $1`, scheduleID); err != nil {
		return fmt.Errorf("failed to clear shifts for schedule %d: %w", scheduleID, err)
	}
	for _, shift := range shifts {
		_, err := tx.Exec(ctx,
			`INSERT INTO schedule_shifts (schedule_id, user_id, start_at, end_at) VALUES ($1, $2, $3, $4)`,
			scheduleID, shift.UserID, shift.Start, shift.End,
		)
		if err != nil {
			return fmt.Errorf("failed to insert shift for schedule %d: %w", scheduleID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit shift rewrite for schedule %d: %w", scheduleID, err)
	}
	return nil
}
