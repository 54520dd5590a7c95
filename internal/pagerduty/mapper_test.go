package pagerduty

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagerduty-analytics/internal/models"
)

func TestMapTeam(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    models.Team
		wantErr string
	}{
		{
			name: "valid",
			raw:  `{"id": "T1", "name": "Platform", "description": "infra"}`,
			want: models.Team{PagerDutyID: "T1", Name: "Platform", Description: "infra"},
		},
		{
			name:    "missing id",
			raw:     `{"name": "Platform"}`,
			wantErr: "id",
		},
		{
			name:    "missing name",
			raw:     `{"id": "T1"}`,
			wantErr: "name",
		},
		{
			name:    "not an object",
			raw:     `"T1"`,
			wantErr: "record",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MapTeam(json.RawMessage(tt.raw))
			if tt.wantErr != "" {
				var mapErr *MappingError
				require.ErrorAs(t, err, &mapErr)
				assert.Equal(t, tt.wantErr, mapErr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapEscalationPolicyCollectsTeamRefs(t *testing.T) {
	raw := `{
		"id": "EP1", "name": "Default", "num_loops": 2,
		"teams": [{"id": "T1"}, {"id": "T2"}, {"id": ""}]
	}`
	got, err := MapEscalationPolicy(json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, "EP1", got.PagerDutyID)
	assert.Equal(t, 2, got.NumLoops)
	assert.Equal(t, []string{"T1", "T2"}, got.TeamIDs)
}

func TestMapUserRequiresEmail(t *testing.T) {
	_, err := MapUser(json.RawMessage(`{"id": "U1", "name": "Alice"}`))
	var mapErr *MappingError
	require.ErrorAs(t, err, &mapErr)
	assert.Equal(t, "email", mapErr.Field)
}

func TestMapService(t *testing.T) {
	raw := `{
		"id": "S1", "name": "Checkout", "status": "critical",
		"created_at": "2024-01-10T08:00:00Z",
		"updated_at": "2024-06-01T12:30:00Z",
		"last_incident_timestamp": "2024-06-01T12:00:00Z",
		"escalation_policy": {"id": "EP1"},
		"teams": [{"id": "T1"}]
	}`
	got, err := MapService(json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCritical, got.Status)
	assert.Equal(t, "EP1", got.EscalationPolicyID)
	assert.Equal(t, []string{"T1"}, got.TeamIDs)
	assert.Equal(t, time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC), got.CreatedAt)
	require.NotNil(t, got.LastIncidentAt)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), *got.LastIncidentAt)
}

func TestMapServiceUnknownStatus(t *testing.T) {
	got, err := MapService(json.RawMessage(`{"id": "S1", "name": "Checkout", "status": "weird"}`))
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnknown, got.Status)
}

func TestMapServiceBadTimestamp(t *testing.T) {
	_, err := MapService(json.RawMessage(`{"id": "S1", "name": "Checkout", "created_at": "yesterday"}`))
	var mapErr *MappingError
	require.ErrorAs(t, err, &mapErr)
	assert.Equal(t, "created_at", mapErr.Field)
}

func TestMapScheduleShifts(t *testing.T) {
	raw := `{
		"id": "SCH1", "name": "Primary", "time_zone": "Europe/Berlin",
		"users": [{"id": "U1"}, {"id": "U2"}],
		"teams": [{"id": "T1"}],
		"final_schedule": {
			"rendered_schedule_entries": [
				{"start": "2024-06-01T00:00:00Z", "end": "2024-06-02T00:00:00Z", "user": {"id": "U1"}},
				{"start": "2024-06-02T00:00:00Z", "end": "2024-06-03T00:00:00Z", "user": null}
			]
		}
	}`
	got, err := MapSchedule(json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"U1", "U2"}, got.UserIDs)
	require.Len(t, got.Shifts, 1)
	assert.Equal(t, "U1", got.Shifts[0].UserID)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), got.Shifts[0].Start)
}

func TestMapIncident(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{
			name: "valid",
			raw: `{"id": "I1", "incident_number": 42, "title": "DB down", "status": "resolved",
				"urgency": "high", "created_at": "2024-06-01T10:00:00Z",
				"resolved_at": "2024-06-01T11:00:00Z", "service": {"id": "S1"}}`,
		},
		{
			name:    "missing service",
			raw:     `{"id": "I1", "created_at": "2024-06-01T10:00:00Z"}`,
			wantErr: "service",
		},
		{
			name:    "missing created_at",
			raw:     `{"id": "I1", "service": {"id": "S1"}}`,
			wantErr: "created_at",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MapIncident(json.RawMessage(tt.raw))
			if tt.wantErr != "" {
				var mapErr *MappingError
				require.ErrorAs(t, err, &mapErr)
				assert.Equal(t, tt.wantErr, mapErr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "S1", got.ServiceID)
			assert.Equal(t, int64(42), got.Number)
			assert.Equal(t, models.IncidentResolved, got.Status)
			assert.Equal(t, models.UrgencyHigh, got.Urgency)
			require.NotNil(t, got.ResolvedAt)
		})
	}
}

func TestMapIncidentUnknownEnums(t *testing.T) {
	raw := `{"id": "I1", "status": "sideways", "urgency": "medium",
		"created_at": "2024-06-01T10:00:00Z", "service": {"id": "S1"}}`
	got, err := MapIncident(json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, models.IncidentUnknown, got.Status)
	assert.Equal(t, models.UrgencyUnknown, got.Urgency)
}
