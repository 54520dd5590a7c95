package db

import (
	"context"
	"fmt"

	"pagerduty-analytics/internal/models"
)

// UpsertTeam inserts a team or updates its mutable fields by upstream ID.
// A single statement, so the row is either fully written or not at all.
func (d *DB) UpsertTeam(ctx context.Context, t models.Team) (int64, error) {
	query := `
	INSERT INTO teams (pagerduty_id, name, description)
	VALUES ($1, $2, $3)
	ON CONFLICT (pagerduty_id) DO UPDATE
	SET name = EXCLUDED.name,
	    description = EXCLUDED.description
	RETURNING id`

	var id int64
	err := d.Pool.QueryRow(ctx, query, t.PagerDutyID, t.Name, t.Description).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert team %s: %w", t.PagerDutyID, err)
	}
	return id, nil
}
