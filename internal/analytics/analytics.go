package analytics

import (
	"context"
	"time"

	"pagerduty-analytics/internal/db"
	"pagerduty-analytics/internal/models"
)

// Service answers the read-side queries over the synced dataset. Most of the
// heavy lifting happens in SQL; the inactive-user window check runs here so
// its edge cases stay unit-testable.
type Service struct {
	db        *db.DB
	lookback  time.Duration
	lookahead time.Duration
}

// New constructs an analytics Service. lookbackDays and lookaheadDays bound
// the on-call window used by InactiveUsers.
func New(database *db.DB, lookbackDays, lookaheadDays int) *Service {
	return &Service{
		db:        database,
		lookback:  time.Duration(lookbackDays) * 24 * time.Hour,
		lookahead: time.Duration(lookaheadDays) * 24 * time.Hour,
	}
}

func (s *Service) CountServices(ctx context.Context) (int, error) { return s.db.CountServices(ctx) }
func (s *Service) CountTeams(ctx context.Context) (int, error)    { return s.db.CountTeams(ctx) }
func (s *Service) CountUsers(ctx context.Context) (int, error)    { return s.db.CountUsers(ctx) }
func (s *Service) CountEscalationPolicies(ctx context.Context) (int, error) {
	return s.db.CountEscalationPolicies(ctx)
}

func (s *Service) ListServices(ctx context.Context) ([]models.ServiceReport, error) {
	return s.db.ListServicesWithIncidentCounts(ctx)
}

func (s *Service) GetServiceDetail(ctx context.Context, pagerDutyID string) (*models.ServiceDetail, error) {
	return s.db.GetServiceDetail(ctx, pagerDutyID)
}

func (s *Service) ListServiceIncidents(ctx context.Context, pagerDutyID string) ([]models.Incident, error) {
	return s.db.ListServiceIncidents(ctx, pagerDutyID)
}

func (s *Service) ServiceWithMostIncidents(ctx context.Context) (*models.ServiceIncidentBreakdown, error) {
	return s.db.ServiceWithMostIncidents(ctx)
}

func (s *Service) ListIncidents(ctx context.Context) ([]models.Incident, error) {
	return s.db.ListIncidents(ctx)
}

func (s *Service) ListIncidentsByService(ctx context.Context) ([]models.ServiceIncidents, error) {
	return s.db.ListIncidentsByService(ctx)
}

func (s *Service) IncidentCountsByStatus(ctx context.Context) ([]models.StatusCount, error) {
	return s.db.IncidentCountsByStatus(ctx)
}

func (s *Service) IncidentCountsByServiceStatus(ctx context.Context) ([]models.ServiceStatusCounts, error) {
	return s.db.IncidentCountsByServiceStatus(ctx)
}

func (s *Service) ListTeams(ctx context.Context) ([]models.TeamReport, error) {
	return s.db.ListTeamsWithServices(ctx)
}

func (s *Service) ListEscalationPolicies(ctx context.Context) ([]models.EscalationPolicyReport, error) {
	return s.db.ListEscalationPolicyReports(ctx)
}

func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.db.ListUsers(ctx)
}

// InactiveUsers returns every scheduled user with no shift overlapping the
// window [now-lookback, now+lookahead]. Users on no schedule at all are not
// reported; absence from scheduling entirely is a different condition than
// holding a slot without coverage.
func (s *Service) InactiveUsers(ctx context.Context) ([]models.User, error) {
	members, err := s.db.ListScheduleMembersWithShifts(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return FilterInactive(members, now.Add(-s.lookback), now.Add(s.lookahead)), nil
}

// FilterInactive returns the users whose shift list contains no shift
// overlapping [from, to]. A shift overlaps when it starts before the window
// ends and ends after the window starts.
func FilterInactive(members []models.UserShifts, from, to time.Time) []models.User {
	inactive := make([]models.User, 0)
	for _, m := range members {
		active := false
		for _, sh := range m.Shifts {
			if sh.Start.Before(to) && sh.End.After(from) {
				active = true
				break
			}
		}
		if !active {
			inactive = append(inactive, m.User)
		}
	}
	return inactive
}
