package db

import (
	"context"
	"fmt"

	"pagerduty-analytics/internal/models"
)

// UpsertIncident inserts an incident or updates its mutable fields by
// upstream ID, then bumps the owning service's last-incident timestamp when
// this incident is newer. Both statements run in one transaction. The service
// reference is resolved via subselect; services are always synced before
// incidents, and a missing service fails the NOT NULL constraint rather than
// writing an orphaned row.
func (d *DB) UpsertIncident(ctx context.Context, inc models.Incident) (int64, error) {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin upsert for incident %s: %w", inc.PagerDutyID, err)
	}
	defer tx.Rollback(ctx)

	query := `
	INSERT INTO incidents (pagerduty_id, incident_number, title, status, urgency, service_id, created_at, resolved_at)
	VALUES ($1, $2, $3, $4, $5,
	        (SELECT id FROM services WHERE pagerduty_id = $6),
	        $7, $8)
	ON CONFLICT (pagerduty_id) DO UPDATE
	SET incident_number = EXCLUDED.incident_number,
	    title = EXCLUDED.title,
	    status = EXCLUDED.status,
	    urgency = EXCLUDED.urgency,
	    service_id = EXCLUDED.service_id,
	    created_at = EXCLUDED.created_at,
	    resolved_at = EXCLUDED.resolved_at
	RETURNING id, service_id`

	var id, serviceID int64
	err = tx.QueryRow(ctx, query,
		inc.PagerDutyID,
		inc.Number,
		inc.Title,
		inc.Status,
		inc.Urgency,
		inc.ServiceID,
		inc.CreatedAt,
		inc.ResolvedAt,
	).Scan(&id, &serviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert incident %s: %w", inc.PagerDutyID, err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE services SET last_incident_at = $2
		 WHERE id = $1 AND (last_incident_at IS NULL OR last_incident_at < $2)`,
		serviceID, inc.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bump last incident for service %d: %w", serviceID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit upsert for incident %s: %w", inc.PagerDutyID, err)
	}
	return id, nil
}
