package models

import "time"

// ServiceStatus mirrors the upstream service status enum. Values the upstream
// adds later map to StatusUnknown instead of failing the sync.
type ServiceStatus string

const (
	StatusActive      ServiceStatus = "active"
	StatusWarning     ServiceStatus = "warning"
	StatusCritical    ServiceStatus = "critical"
	StatusMaintenance ServiceStatus = "maintenance"
	StatusDisabled    ServiceStatus = "disabled"
	StatusUnknown     ServiceStatus = "unknown"
)

// ParseServiceStatus maps an upstream status string to a ServiceStatus.
func ParseServiceStatus(s string) ServiceStatus {
	switch ServiceStatus(s) {
	case StatusActive, StatusWarning, StatusCritical, StatusMaintenance, StatusDisabled:
		return ServiceStatus(s)
	default:
		return StatusUnknown
	}
}

// IncidentStatus mirrors the upstream incident status enum.
type IncidentStatus string

const (
	IncidentTriggered    IncidentStatus = "triggered"
	IncidentAcknowledged IncidentStatus = "acknowledged"
	IncidentResolved     IncidentStatus = "resolved"
	IncidentUnknown      IncidentStatus = "unknown"
)

// ParseIncidentStatus maps an upstream status string to an IncidentStatus.
func ParseIncidentStatus(s string) IncidentStatus {
	switch IncidentStatus(s) {
	case IncidentTriggered, IncidentAcknowledged, IncidentResolved:
		return IncidentStatus(s)
	default:
		return IncidentUnknown
	}
}

// Urgency mirrors the upstream incident urgency enum.
type Urgency string

const (
	UrgencyHigh    Urgency = "high"
	UrgencyLow     Urgency = "low"
	UrgencyUnknown Urgency = "unknown"
)

// ParseUrgency maps an upstream urgency string to an Urgency.
func ParseUrgency(s string) Urgency {
	switch Urgency(s) {
	case UrgencyHigh, UrgencyLow:
		return Urgency(s)
	default:
		return UrgencyUnknown
	}
}

// Team represents a PagerDuty team. ID is the internal surrogate key,
// PagerDutyID the upstream identifier.
type Team struct {
	ID          int64  `json:"id"`
	PagerDutyID string `json:"pagerduty_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// EscalationPolicy represents a PagerDuty escalation policy.
// TeamIDs holds the upstream team identifiers reported inline on the record;
// they are translated to internal IDs during the linking pass.
type EscalationPolicy struct {
	ID          int64  `json:"id"`
	PagerDutyID string `json:"pagerduty_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	NumLoops    int    `json:"num_loops"`

	TeamIDs []string `json:"-"`
}

// User represents a PagerDuty user.
type User struct {
	ID          int64  `json:"id"`
	PagerDutyID string `json:"pagerduty_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role,omitempty"`

	TeamIDs []string `json:"-"`
}

// Service represents a PagerDuty service. EscalationPolicyID carries the
// upstream policy identifier; the repository resolves it to the internal
// foreign key at upsert time (policies are always synced before services).
type Service struct {
	ID             int64         `json:"id"`
	PagerDutyID    string        `json:"pagerduty_id"`
	Name           string        `json:"name"`
	Status         ServiceStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	LastIncidentAt *time.Time    `json:"last_incident_at,omitempty"`

	EscalationPolicyID string   `json:"-"`
	TeamIDs            []string `json:"-"`
}

// ScheduleShift is one rendered on-call entry of a schedule. UserID holds the
// upstream user identifier until the linking pass resolves it.
type ScheduleShift struct {
	UserID string    `json:"user_id"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// Schedule represents a PagerDuty on-call schedule with its rendered shifts.
type Schedule struct {
	ID          int64  `json:"id"`
	PagerDutyID string `json:"pagerduty_id"`
	Name        string `json:"name"`
	TimeZone    string `json:"time_zone,omitempty"`

	UserIDs []string        `json:"-"`
	TeamIDs []string        `json:"-"`
	Shifts  []ScheduleShift `json:"-"`
}

// Incident represents a PagerDuty incident. ServiceID holds the upstream
// service identifier; the repository resolves it to the internal foreign key.
type Incident struct {
	ID          int64          `json:"id"`
	PagerDutyID string         `json:"pagerduty_id"`
	Number      int64          `json:"incident_number"`
	Title       string         `json:"title"`
	Status      IncidentStatus `json:"status"`
	Urgency     Urgency        `json:"urgency"`
	CreatedAt   time.Time      `json:"created_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`

	ServiceID string `json:"service_id,omitempty"`
}
