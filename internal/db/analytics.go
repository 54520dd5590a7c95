package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pagerduty-analytics/internal/models"
)

// Read-only aggregation queries consumed by the analytics service. They
// observe whatever the sync has committed so far (read-committed isolation).

func (d *DB) CountServices(ctx context.Context) (int, error) {
	return d.countRows(ctx, "services")
}

func (d *DB) CountTeams(ctx context.Context) (int, error) {
	return d.countRows(ctx, "teams")
}

func (d *DB) CountEscalationPolicies(ctx context.Context) (int, error) {
	return d.countRows(ctx, "escalation_policies")
}

func (d *DB) CountUsers(ctx context.Context) (int, error) {
	return d.countRows(ctx, "users")
}

var countTables = map[string]bool{
	"services":            true,
	"teams":               true,
	"escalation_policies": true,
	"users":               true,
}

func (d *DB) countRows(ctx context.Context, table string) (int, error) {
	if !countTables[table] {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	if err := d.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// ListServicesWithIncidentCounts returns every service with its incident count.
func (d *DB) ListServicesWithIncidentCounts(ctx context.Context) ([]models.ServiceReport, error) {
	query := `
	SELECT s.pagerduty_id, s.name, s.status, COUNT(i.id)
	FROM services s
	LEFT JOIN incidents i ON i.service_id = s.id
	GROUP BY s.id, s.pagerduty_id, s.name, s.status
	ORDER BY s.name`

	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var list []models.ServiceReport
	for rows.Next() {
		var sr models.ServiceReport
		if err := rows.Scan(&sr.PagerDutyID, &sr.Name, &sr.Status, &sr.IncidentCount); err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		list = append(list, sr)
	}
	return list, rows.Err()
}

// GetServiceDetail returns one service with its teams and escalation policy.
func (d *DB) GetServiceDetail(ctx context.Context, pagerdutyID string) (*models.ServiceDetail, error) {
	query := `
	SELECT s.id, s.pagerduty_id, s.name, s.status, s.last_incident_at,
	       (SELECT COUNT(*) FROM incidents i WHERE i.service_id = s.id),
	       ep.pagerduty_id, ep.name, ep.description, ep.num_loops
	FROM services s
	LEFT JOIN escalation_policies ep ON ep.id = s.escalation_policy_id
	WHERE s.pagerduty_id = $1`

	var (
		internalID                  int64
		detail                      models.ServiceDetail
		epID, epName, epDescription *string
		epNumLoops                  *int
	)
	err := d.Pool.QueryRow(ctx, query, pagerdutyID).Scan(
		&internalID,
		&detail.PagerDutyID,
		&detail.Name,
		&detail.Status,
		&detail.LastIncidentAt,
		&detail.IncidentCount,
		&epID, &epName, &epDescription, &epNumLoops,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service %s: %w", pagerdutyID, err)
	}
	if epID != nil {
		detail.EscalationPolicy = &models.EscalationPolicy{
			PagerDutyID: *epID,
			Name:        *epName,
			Description: *epDescription,
			NumLoops:    *epNumLoops,
		}
	}

	teamQuery := `
	SELECT t.id, t.pagerduty_id, t.name, t.description
	FROM teams t
	JOIN service_teams st ON st.team_id = t.id
	WHERE st.service_id = $1
	ORDER BY t.name`

	rows, err := d.Pool.Query(ctx, teamQuery, internalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get teams for service %s: %w", pagerdutyID, err)
	}
	defer rows.Close()

	detail.Teams = []models.Team{}
	for rows.Next() {
		var t models.Team
		if err := rows.Scan(&t.ID, &t.PagerDutyID, &t.Name, &t.Description); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		detail.Teams = append(detail.Teams, t)
	}
	return &detail, rows.Err()
}

const incidentColumns = `
	i.id, i.pagerduty_id, i.incident_number, i.title, i.status, i.urgency,
	i.created_at, i.resolved_at, s.pagerduty_id`

func scanIncident(rows interface {
	Scan(dest ...interface{}) error
}) (models.Incident, error) {
	var inc models.Incident
	err := rows.Scan(
		&inc.ID,
		&inc.PagerDutyID,
		&inc.Number,
		&inc.Title,
		&inc.Status,
		&inc.Urgency,
		&inc.CreatedAt,
		&inc.ResolvedAt,
		&inc.ServiceID,
	)
	return inc, err
}

// ListIncidents returns all incidents, newest first.
func (d *DB) ListIncidents(ctx context.Context) ([]models.Incident, error) {
	query := `
	SELECT ` + incidentColumns + `
	FROM incidents i
	JOIN services s ON s.id = i.service_id
	ORDER BY i.created_at DESC`

	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	var list []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		list = append(list, inc)
	}
	return list, rows.Err()
}

// ListServiceIncidents returns all incidents of one service, newest first.
func (d *DB) ListServiceIncidents(ctx context.Context, servicePagerDutyID string) ([]models.Incident, error) {
	query := `
	SELECT ` + incidentColumns + `
	FROM incidents i
	JOIN services s ON s.id = i.service_id
	WHERE s.pagerduty_id = $1
	ORDER BY i.created_at DESC`

	rows, err := d.Pool.Query(ctx, query, servicePagerDutyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents for service %s: %w", servicePagerDutyID, err)
	}
	defer rows.Close()

	var list []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		list = append(list, inc)
	}
	return list, rows.Err()
}

// ListIncidentsByService returns incidents grouped under their services.
func (d *DB) ListIncidentsByService(ctx context.Context) ([]models.ServiceIncidents, error) {
	query := `
	SELECT s.pagerduty_id, s.name, ` + incidentColumns + `
	FROM incidents i
	JOIN services s ON s.id = i.service_id
	ORDER BY s.name, i.created_at DESC`

	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents by service: %w", err)
	}
	defer rows.Close()

	var list []models.ServiceIncidents
	index := map[string]int{}
	for rows.Next() {
		var (
			svcID, svcName string
			inc            models.Incident
		)
		err := rows.Scan(
			&svcID, &svcName,
			&inc.ID, &inc.PagerDutyID, &inc.Number, &inc.Title, &inc.Status, &inc.Urgency,
			&inc.CreatedAt, &inc.ResolvedAt, &inc.ServiceID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		pos, ok := index[svcID]
		if !ok {
			pos = len(list)
			index[svcID] = pos
			list = append(list, models.ServiceIncidents{PagerDutyID: svcID, Name: svcName})
		}
		list[pos].Incidents = append(list[pos].Incidents, inc)
	}
	return list, rows.Err()
}

// IncidentCountsByStatus returns incident counts grouped by status.
func (d *DB) IncidentCountsByStatus(ctx context.Context) ([]models.StatusCount, error) {
	query := `
	SELECT status, COUNT(*)
	FROM incidents
	GROUP BY status
	ORDER BY status`

	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count incidents by status: %w", err)
	}
	defer rows.Close()

	var list []models.StatusCount
	for rows.Next() {
		var sc models.StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		list = append(list, sc)
	}
	return list, rows.Err()
}

// IncidentCountsByServiceStatus returns per-service, per-status incident counts.
func (d *DB) IncidentCountsByServiceStatus(ctx context.Context) ([]models.ServiceStatusCounts, error) {
	query := `
	SELECT s.pagerduty_id, s.name, i.status, COUNT(*)
	FROM incidents i
	JOIN services s ON s.id = i.service_id
	GROUP BY s.pagerduty_id, s.name, i.status
	ORDER BY s.name, i.status`

	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count incidents by service and status: %w", err)
	}
	defer rows.Close()

	var list []models.ServiceStatusCounts
	index := map[string]int{}
	for rows.Next() {
		var (
			id, name, status string
			count            int
		)
		if err := rows.Scan(&id, &name, &status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan service status count: %w", err)
		}
		pos, ok := index[id]
		if !ok {
			pos = len(list)
			index[id] = pos
			list = append(list, models.ServiceStatusCounts{
				PagerDutyID: id,
				Name:        name,
				ByStatus:    map[string]int{},
			})
		}
		list[pos].ByStatus[status] = count
	}
	return list, rows.Err()
}

// ServiceWithMostIncidents returns the service carrying the most incidents
// together with its per-status breakdown, or nil when no services exist.
func (d *DB) ServiceWithMostIncidents(ctx context.Context) (*models.ServiceIncidentBreakdown, error) {
	query := `
	SELECT s.pagerduty_id, s.name, COUNT(i.id)
	FROM services s
	LEFT JOIN incidents i ON i.service_id = s.id
	GROUP BY s.pagerduty_id, s.name
	ORDER BY COUNT(i.id) DESC, s.name
	LIMIT 1`

	out := &models.ServiceIncidentBreakdown{ByStatus: map[string]int{}}
	err := d.Pool.QueryRow(ctx, query).Scan(&out.PagerDutyID, &out.Name, &out.TotalIncidents)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find service with most incidents: %w", err)
	}

	breakdown := `
	SELECT i.status, COUNT(*)
	FROM incidents i
	JOIN services s ON s.id = i.service_id
	WHERE s.pagerduty_id = $1
	GROUP BY i.status`

	rows, err := d.Pool.Query(ctx, breakdown, out.PagerDutyID)
	if err != nil {
		return nil, fmt.Errorf("failed to break down incidents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan breakdown: %w", err)
		}
		out.ByStatus[status] = count
	}
	return out, rows.Err()
}

// ListTeamsWithServices returns every team with its related services and
// their incident counts.
func (d *DB) ListTeamsWithServices(ctx context.Context) ([]models.TeamReport, error) {
	query := `
	SELECT t.pagerduty_id, t.name, s.pagerduty_id, s.name, s.status,
	       (SELECT COUNT(*) FROM incidents i WHERE i.service_id = s.id)
	FROM teams t
	LEFT JOIN service_teams st ON st.team_id = t.id
	LEFT JOIN services s ON s.id = st.service_id
	ORDER BY t.name, s.name`

	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var list []models.TeamReport
	index := map[string]int{}
	for rows.Next() {
		var (
			teamID, teamName       string
			svcID, svcName, status *string
			incidentCount          *int
		)
		if err := rows.Scan(&teamID, &teamName, &svcID, &svcName, &status, &incidentCount); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		pos, ok := index[teamID]
		if !ok {
			pos = len(list)
			index[teamID] = pos
			list = append(list, models.TeamReport{
				PagerDutyID: teamID,
				Name:        teamName,
				Services:    []models.ServiceReport{},
			})
		}
		if svcID != nil {
			list[pos].Services = append(list[pos].Services, models.ServiceReport{
				PagerDutyID:   *svcID,
				Name:          *svcName,
				Status:        models.ServiceStatus(*status),
				IncidentCount: *incidentCount,
			})
		}
	}
	return list, rows.Err()
}

// ListEscalationPolicyReports returns every escalation policy with its team
// and service counts.
func (d *DB) ListEscalationPolicyReports(ctx context.Context) ([]models.EscalationPolicyReport, error) {
	query := `
	SELECT ep.pagerduty_id, ep.name, ep.num_loops,
	       (SELECT COUNT(*) FROM escalation_policy_teams ept WHERE ept.escalation_policy_id = ep.id),
	       (SELECT COUNT(*) FROM services s WHERE s.escalation_policy_id = ep.id)
	FROM escalation_policies ep
	ORDER BY ep.name`

	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalation policies: %w", err)
	}
	defer rows.Close()

	var list []models.EscalationPolicyReport
	for rows.Next() {
		var r models.EscalationPolicyReport
		if err := rows.Scan(&r.PagerDutyID, &r.Name, &r.NumLoops, &r.TeamCount, &r.ServiceCount); err != nil {
			return nil, fmt.Errorf("failed to scan escalation policy: %w", err)
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

// ListUsers returns every synced user.
func (d *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	query := `SELECT id, pagerduty_id, name, email, role FROM users ORDER BY name`

	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var list []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.PagerDutyID, &u.Name, &u.Email, &u.Role); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

// ListScheduleMembersWithShifts returns every user that belongs to at least
// one schedule, together with all shifts synced for them. The analytics
// service decides activity from the shifts.
func (d *DB) ListScheduleMembersWithShifts(ctx context.Context) ([]models.UserShifts, error) {
	query := `
	SELECT u.id, u.pagerduty_id, u.name, u.email, u.role, ss.start_at, ss.end_at
	FROM users u
	LEFT JOIN schedule_shifts ss ON ss.user_id = u.id
	WHERE EXISTS (SELECT 1 FROM schedule_users su WHERE su.user_id = u.id)
	ORDER BY u.name`

	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule members: %w", err)
	}
	defer rows.Close()

	var list []models.UserShifts
	index := map[int64]int{}
	for rows.Next() {
		var (
			u          models.User
			start, end *time.Time
		)
		if err := rows.Scan(&u.ID, &u.PagerDutyID, &u.Name, &u.Email, &u.Role, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan schedule member: %w", err)
		}
		pos, ok := index[u.ID]
		if !ok {
			pos = len(list)
			index[u.ID] = pos
			list = append(list, models.UserShifts{User: u})
		}
		if start != nil && end != nil {
			list[pos].Shifts = append(list[pos].Shifts, models.ScheduleShift{Start: *start, End: *end})
		}
	}
	return list, rows.Err()
}
