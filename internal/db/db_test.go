package db

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagerduty-analytics/internal/models"
)

// testDB connects to the database named by TEST_DB_DSN, creates the schema,
// and truncates all tables so each test starts clean. Tests are skipped when
// the variable is unset.
func testDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("set TEST_DB_DSN to run database tests")
	}

	d, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	ctx := context.Background()
	require.NoError(t, d.Setup(ctx))
	_, err = d.Pool.Exec(ctx, `TRUNCATE
		service_teams, escalation_policy_teams, user_teams, schedule_users,
		schedule_teams, schedule_shifts, incidents, schedules, services,
		users, escalation_policies, teams
		RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return d
}

func TestIncidentCountsByServiceStatusGroups(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	_, err := d.UpsertService(ctx, models.Service{
		PagerDutyID: "S1", Name: "Checkout", Status: models.StatusActive,
	})
	require.NoError(t, err)

	created := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := d.UpsertIncident(ctx, models.Incident{
			PagerDutyID: fmt.Sprintf("I-T%d", i),
			Status:      models.IncidentTriggered,
			Urgency:     models.UrgencyHigh,
			CreatedAt:   created.Add(time.Duration(i) * time.Minute),
			ServiceID:   "S1",
		})
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		resolved := created.Add(time.Hour)
		_, err := d.UpsertIncident(ctx, models.Incident{
			PagerDutyID: fmt.Sprintf("I-R%d", i),
			Status:      models.IncidentResolved,
			Urgency:     models.UrgencyLow,
			CreatedAt:   created,
			ResolvedAt:  &resolved,
			ServiceID:   "S1",
		})
		require.NoError(t, err)
	}

	counts, err := d.IncidentCountsByServiceStatus(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, "S1", counts[0].PagerDutyID)
	assert.Equal(t, map[string]int{"triggered": 3, "resolved": 2}, counts[0].ByStatus)
}

func TestReplaceLinksRejectsMissingMember(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	teamID, err := d.UpsertTeam(ctx, models.Team{PagerDutyID: "T1", Name: "Platform"})
	require.NoError(t, err)
	serviceID, err := d.UpsertService(ctx, models.Service{
		PagerDutyID: "S1", Name: "Checkout", Status: models.StatusActive,
	})
	require.NoError(t, err)

	err = d.ReplaceLinks(ctx, models.RelServiceTeams, serviceID, []int64{teamID, teamID + 999})
	var dangling *DanglingReferenceError
	require.ErrorAs(t, err, &dangling)
	assert.Equal(t, models.RelServiceTeams, dangling.Relation)
	assert.Equal(t, 1, dangling.Missing)

	// The rejection must leave the association table untouched, valid
	// members included.
	var n int
	require.NoError(t, d.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM service_teams`).Scan(&n))
	assert.Zero(t, n)
}

func TestReplaceLinksRewritesWholesale(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	t1, err := d.UpsertTeam(ctx, models.Team{PagerDutyID: "T1", Name: "Platform"})
	require.NoError(t, err)
	t2, err := d.UpsertTeam(ctx, models.Team{PagerDutyID: "T2", Name: "Payments"})
	require.NoError(t, err)
	serviceID, err := d.UpsertService(ctx, models.Service{
		PagerDutyID: "S1", Name: "Checkout", Status: models.StatusActive,
	})
	require.NoError(t, err)

	require.NoError(t, d.ReplaceLinks(ctx, models.RelServiceTeams, serviceID, []int64{t1, t2}))
	require.NoError(t, d.ReplaceLinks(ctx, models.RelServiceTeams, serviceID, []int64{t2}))

	rows, err := d.Pool.Query(ctx, `SELECT team_id FROM service_teams WHERE service_id = $1`, serviceID)
	require.NoError(t, err)
	defer rows.Close()

	var members []int64
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		members = append(members, id)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []int64{t2}, members)
}
