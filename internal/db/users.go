package db

import (
	"context"
	"fmt"

	"pagerduty-analytics/internal/models"
)

// UpsertUser inserts a user or updates their mutable fields by upstream ID.
func (d *DB) UpsertUser(ctx context.Context, u models.User) (int64, error) {
	query := `
	INSERT INTO users (pagerduty_id, name, email, role)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (pagerduty_id) DO UPDATE
	SET name = EXCLUDED.name,
	    email = EXCLUDED.email,
	    role = EXCLUDED.role
	RETURNING id`

	var id int64
	err := d.Pool.QueryRow(ctx, query, u.PagerDutyID, u.Name, u.Email, u.Role).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert user %s: %w", u.PagerDutyID, err)
	}
	return id, nil
}
