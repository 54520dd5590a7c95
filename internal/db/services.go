package db

import (
	"context"
	"fmt"

	"pagerduty-analytics/internal/models"
)

// UpsertService inserts a service or updates its mutable fields by upstream
// ID. The escalation policy reference is resolved to the internal key in the
// same statement; the fetch order guarantees policies are already present,
// and a reference to one removed upstream mid-run resolves to NULL.
func (d *DB) UpsertService(ctx context.Context, s models.Service) (int64, error) {
	query := `
	INSERT INTO services (pagerduty_id, name, status, escalation_policy_id, created_at, updated_at, last_incident_at)
	VALUES ($1, $2, $3,
	        (SELECT id FROM escalation_policies WHERE pagerduty_id = $4),
	        $5, $6, $7)
	ON CONFLICT (pagerduty_id) DO UPDATE
	SET name = EXCLUDED.name,
	    status = EXCLUDED.status,
	    escalation_policy_id = EXCLUDED.escalation_policy_id,
	    created_at = EXCLUDED.created_at,
	    updated_at = EXCLUDED.updated_at,
	    last_incident_at = GREATEST(services.last_incident_at, EXCLUDED.last_incident_at)
	RETURNING id`

	var id int64
	err := d.Pool.QueryRow(ctx, query,
		s.PagerDutyID,
		s.Name,
		s.Status,
		s.EscalationPolicyID,
		nullableTime(s.CreatedAt),
		nullableTime(s.UpdatedAt),
		s.LastIncidentAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert service %s: %w", s.PagerDutyID, err)
	}
	return id, nil
}
