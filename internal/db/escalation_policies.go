package db

import (
	"context"
	"fmt"

	"pagerduty-analytics/internal/models"
)

// UpsertEscalationPolicy inserts a policy or updates its mutable fields by
// upstream ID.
func (d *DB) UpsertEscalationPolicy(ctx context.Context, p models.EscalationPolicy) (int64, error) {
	query := `
	INSERT INTO escalation_policies (pagerduty_id, name, description, num_loops)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (pagerduty_id) DO UPDATE
	SET name = EXCLUDED.name,
	    description = EXCLUDED.description,
	    num_loops = EXCLUDED.num_loops
	RETURNING id`

	var id int64
	err := d.Pool.QueryRow(ctx, query, p.PagerDutyID, p.Name, p.Description, p.NumLoops).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert escalation policy %s: %w", p.PagerDutyID, err)
	}
	return id, nil
}
