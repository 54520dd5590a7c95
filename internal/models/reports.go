package models

import "time"

// Report row shapes returned by the analytics queries.

// ServiceReport is one service with its incident count.
type ServiceReport struct {
	PagerDutyID   string        `json:"id"`
	Name          string        `json:"name"`
	Status        ServiceStatus `json:"status"`
	IncidentCount int           `json:"incident_count"`
}

// ServiceDetail is one service with its related teams and escalation policy.
type ServiceDetail struct {
	PagerDutyID      string            `json:"id"`
	Name             string            `json:"name"`
	Status           ServiceStatus     `json:"status"`
	IncidentCount    int               `json:"incident_count"`
	LastIncidentAt   *time.Time        `json:"last_incident_at,omitempty"`
	EscalationPolicy *EscalationPolicy `json:"escalation_policy,omitempty"`
	Teams            []Team            `json:"teams"`
}

// ServiceIncidentBreakdown names the service with the most incidents and its
// per-status counts.
type ServiceIncidentBreakdown struct {
	PagerDutyID    string         `json:"service_id,omitempty"`
	Name           string         `json:"service_name,omitempty"`
	TotalIncidents int            `json:"total_incidents"`
	ByStatus       map[string]int `json:"status_breakdown"`
}

// ServiceIncidents groups a service's incidents under the service.
type ServiceIncidents struct {
	PagerDutyID string     `json:"service_id"`
	Name        string     `json:"service_name"`
	Incidents   []Incident `json:"incidents"`
}

// StatusCount is an incident count for one status.
type StatusCount struct {
	Status IncidentStatus `json:"status"`
	Count  int            `json:"count"`
}

// ServiceStatusCounts holds per-status incident counts for one service.
type ServiceStatusCounts struct {
	PagerDutyID string         `json:"service_id"`
	Name        string         `json:"service_name"`
	ByStatus    map[string]int `json:"status_groups"`
}

// TeamReport is one team with its related services.
type TeamReport struct {
	PagerDutyID string          `json:"id"`
	Name        string          `json:"name"`
	Services    []ServiceReport `json:"services"`
}

// EscalationPolicyReport is one policy with its team and service counts.
type EscalationPolicyReport struct {
	PagerDutyID  string `json:"id"`
	Name         string `json:"name"`
	NumLoops     int    `json:"num_loops"`
	TeamCount    int    `json:"team_count"`
	ServiceCount int    `json:"service_count"`
}

// UserShifts is one schedule member with every shift synced for them.
type UserShifts struct {
	User   User
	Shifts []ScheduleShift
}
