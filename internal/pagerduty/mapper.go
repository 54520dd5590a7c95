package pagerduty

import (
	"encoding/json"
	"time"

	"pagerduty-analytics/internal/models"
)

// Mappers translate raw upstream records into internal entities. They are the
// only place that touches upstream payload shapes: everything downstream works
// on the models package. A missing or ill-shaped required field yields a
// *MappingError; unknown enum values map to the Unknown variants instead.

// reference is the common {id, type, summary} shape upstream uses to embed
// related records.
type reference struct {
	ID string `json:"id"`
}

func refIDs(refs []reference) []string {
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		if r.ID != "" {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// parseTime parses an upstream timezone-qualified timestamp.
func parseTime(resource, field, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, &MappingError{Resource: resource, Field: field, Reason: "is not a valid RFC3339 timestamp"}
	}
	return t, nil
}

// MapTeam translates a raw team record.
func MapTeam(raw json.RawMessage) (models.Team, error) {
	var in struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return models.Team{}, &MappingError{Resource: ResourceTeams, Field: "record", Reason: "is not a JSON object"}
	}
	if in.ID == "" {
		return models.Team{}, &MappingError{Resource: ResourceTeams, Field: "id", Reason: "is missing"}
	}
	if in.Name == "" {
		return models.Team{}, &MappingError{Resource: ResourceTeams, Field: "name", Reason: "is missing"}
	}
	return models.Team{PagerDutyID: in.ID, Name: in.Name, Description: in.Description}, nil
}

// MapEscalationPolicy translates a raw escalation policy record.
func MapEscalationPolicy(raw json.RawMessage) (models.EscalationPolicy, error) {
	var in struct {
		ID          string      `json:"id"`
		Name        string      `json:"name"`
		Description string      `json:"description"`
		NumLoops    int         `json:"num_loops"`
		Teams       []reference `json:"teams"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return models.EscalationPolicy{}, &MappingError{Resource: ResourceEscalationPolicies, Field: "record", Reason: "is not a JSON object"}
	}
	if in.ID == "" {
		return models.EscalationPolicy{}, &MappingError{Resource: ResourceEscalationPolicies, Field: "id", Reason: "is missing"}
	}
	if in.Name == "" {
		return models.EscalationPolicy{}, &MappingError{Resource: ResourceEscalationPolicies, Field: "name", Reason: "is missing"}
	}
	return models.EscalationPolicy{
		PagerDutyID: in.ID,
		Name:        in.Name,
		Description: in.Description,
		NumLoops:    in.NumLoops,
		TeamIDs:     refIDs(in.Teams),
	}, nil
}

// MapUser translates a raw user record.
func MapUser(raw json.RawMessage) (models.User, error) {
	var in struct {
		ID    string      `json:"id"`
		Name  string      `json:"name"`
		Email string      `json:"email"`
		Role  string      `json:"role"`
		Teams []reference `json:"teams"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return models.User{}, &MappingError{Resource: ResourceUsers, Field: "record", Reason: "is not a JSON object"}
	}
	if in.ID == "" {
		return models.User{}, &MappingError{Resource: ResourceUsers, Field: "id", Reason: "is missing"}
	}
	if in.Name == "" {
		return models.User{}, &MappingError{Resource: ResourceUsers, Field: "name", Reason: "is missing"}
	}
	if in.Email == "" {
		return models.User{}, &MappingError{Resource: ResourceUsers, Field: "email", Reason: "is missing"}
	}
	return models.User{
		PagerDutyID: in.ID,
		Name:        in.Name,
		Email:       in.Email,
		Role:        in.Role,
		TeamIDs:     refIDs(in.Teams),
	}, nil
}

// MapService translates a raw service record.
func MapService(raw json.RawMessage) (models.Service, error) {
	var in struct {
		ID                    string      `json:"id"`
		Name                  string      `json:"name"`
		Status                string      `json:"status"`
		CreatedAt             string      `json:"created_at"`
		UpdatedAt             string      `json:"updated_at"`
		LastIncidentTimestamp string      `json:"last_incident_timestamp"`
		EscalationPolicy      *reference  `json:"escalation_policy"`
		Teams                 []reference `json:"teams"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return models.Service{}, &MappingError{Resource: ResourceServices, Field: "record", Reason: "is not a JSON object"}
	}
	if in.ID == "" {
		return models.Service{}, &MappingError{Resource: ResourceServices, Field: "id", Reason: "is missing"}
	}
	if in.Name == "" {
		return models.Service{}, &MappingError{Resource: ResourceServices, Field: "name", Reason: "is missing"}
	}

	svc := models.Service{
		PagerDutyID: in.ID,
		Name:        in.Name,
		Status:      models.ParseServiceStatus(in.Status),
		TeamIDs:     refIDs(in.Teams),
	}
	if in.EscalationPolicy != nil {
		svc.EscalationPolicyID = in.EscalationPolicy.ID
	}
	if in.CreatedAt != "" {
		t, err := parseTime(ResourceServices, "created_at", in.CreatedAt)
		if err != nil {
			return models.Service{}, err
		}
		svc.CreatedAt = t
	}
	if in.UpdatedAt != "" {
		t, err := parseTime(ResourceServices, "updated_at", in.UpdatedAt)
		if err != nil {
			return models.Service{}, err
		}
		svc.UpdatedAt = t
	}
	if in.LastIncidentTimestamp != "" {
		t, err := parseTime(ResourceServices, "last_incident_timestamp", in.LastIncidentTimestamp)
		if err != nil {
			return models.Service{}, err
		}
		svc.LastIncidentAt = &t
	}
	return svc, nil
}

// MapSchedule translates a raw schedule record, including the rendered
// on-call entries of the final schedule when present.
func MapSchedule(raw json.RawMessage) (models.Schedule, error) {
	var in struct {
		ID            string      `json:"id"`
		Name          string      `json:"name"`
		TimeZone      string      `json:"time_zone"`
		Users         []reference `json:"users"`
		Teams         []reference `json:"teams"`
		FinalSchedule struct {
			RenderedScheduleEntries []struct {
				Start string     `json:"start"`
				End   string     `json:"end"`
				User  *reference `json:"user"`
			} `json:"rendered_schedule_entries"`
		} `json:"final_schedule"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return models.Schedule{}, &MappingError{Resource: ResourceSchedules, Field: "record", Reason: "is not a JSON object"}
	}
	if in.ID == "" {
		return models.Schedule{}, &MappingError{Resource: ResourceSchedules, Field: "id", Reason: "is missing"}
	}
	if in.Name == "" {
		return models.Schedule{}, &MappingError{Resource: ResourceSchedules, Field: "name", Reason: "is missing"}
	}

	sched := models.Schedule{
		PagerDutyID: in.ID,
		Name:        in.Name,
		TimeZone:    in.TimeZone,
		UserIDs:     refIDs(in.Users),
		TeamIDs:     refIDs(in.Teams),
	}
	for _, entry := range in.FinalSchedule.RenderedScheduleEntries {
		if entry.User == nil || entry.User.ID == "" {
			continue
		}
		start, err := parseTime(ResourceSchedules, "final_schedule.start", entry.Start)
		if err != nil {
			return models.Schedule{}, err
		}
		end, err := parseTime(ResourceSchedules, "final_schedule.end", entry.End)
		if err != nil {
			return models.Schedule{}, err
		}
		sched.Shifts = append(sched.Shifts, models.ScheduleShift{
			UserID: entry.User.ID,
			Start:  start,
			End:    end,
		})
	}
	return sched, nil
}

// MapIncident translates a raw incident record.
func MapIncident(raw json.RawMessage) (models.Incident, error) {
	var in struct {
		ID             string     `json:"id"`
		IncidentNumber int64      `json:"incident_number"`
		Title          string     `json:"title"`
		Status         string     `json:"status"`
		Urgency        string     `json:"urgency"`
		CreatedAt      string     `json:"created_at"`
		ResolvedAt     string     `json:"resolved_at"`
		Service        *reference `json:"service"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return models.Incident{}, &MappingError{Resource: ResourceIncidents, Field: "record", Reason: "is not a JSON object"}
	}
	if in.ID == "" {
		return models.Incident{}, &MappingError{Resource: ResourceIncidents, Field: "id", Reason: "is missing"}
	}
	if in.Service == nil || in.Service.ID == "" {
		return models.Incident{}, &MappingError{Resource: ResourceIncidents, Field: "service", Reason: "is missing"}
	}
	if in.CreatedAt == "" {
		return models.Incident{}, &MappingError{Resource: ResourceIncidents, Field: "created_at", Reason: "is missing"}
	}

	created, err := parseTime(ResourceIncidents, "created_at", in.CreatedAt)
	if err != nil {
		return models.Incident{}, err
	}
	inc := models.Incident{
		PagerDutyID: in.ID,
		Number:      in.IncidentNumber,
		Title:       in.Title,
		Status:      models.ParseIncidentStatus(in.Status),
		Urgency:     models.ParseUrgency(in.Urgency),
		CreatedAt:   created,
		ServiceID:   in.Service.ID,
	}
	if in.ResolvedAt != "" {
		t, err := parseTime(ResourceIncidents, "resolved_at", in.ResolvedAt)
		if err != nil {
			return models.Incident{}, err
		}
		inc.ResolvedAt = &t
	}
	return inc, nil
}
