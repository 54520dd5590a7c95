package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"pagerduty-analytics/internal/db"
	"pagerduty-analytics/internal/logging"
	"pagerduty-analytics/internal/models"
	"pagerduty-analytics/internal/pagerduty"
)

// ErrSyncInProgress is returned when a run is requested while one is active.
var ErrSyncInProgress = errors.New("sync already in progress")

// Store is the slice of the repository the orchestrator writes through.
// Implemented by *db.DB; tests substitute an in-memory fake.
type Store interface {
	UpsertTeam(ctx context.Context, t models.Team) (int64, error)
	UpsertEscalationPolicy(ctx context.Context, p models.EscalationPolicy) (int64, error)
	UpsertUser(ctx context.Context, u models.User) (int64, error)
	UpsertService(ctx context.Context, s models.Service) (int64, error)
	UpsertSchedule(ctx context.Context, s models.Schedule) (int64, error)
	UpsertIncident(ctx context.Context, i models.Incident) (int64, error)
	ReplaceLinks(ctx context.Context, relation string, ownerID int64, memberIDs []int64) error
	ReplaceScheduleShifts(ctx context.Context, scheduleID int64, shifts []db.ResolvedShift) error
}

// PageIter is the page-at-a-time iteration contract of the API client.
type PageIter interface {
	Next() bool
	Page() *pagerduty.Page
	Err() error
}

// Fetcher yields lazy page iterators per resource. Implemented by
// *pagerduty.Client.
type Fetcher interface {
	Pages(ctx context.Context, resource string, params url.Values) *pagerduty.PageIter
}

// fetchFunc adapts Fetcher so tests can inject fake iterators.
type fetchFunc func(ctx context.Context, resource string) PageIter

// stageOrder fixes the dependency order of entity-type stages. Teams,
// escalation policies, and users carry no references among themselves;
// services reference policies; schedules reference users; incidents reference
// services. This ordering keeps foreign keys intact without deferred
// constraints.
var stageOrder = []string{
	pagerduty.ResourceTeams,
	pagerduty.ResourceEscalationPolicies,
	pagerduty.ResourceUsers,
	pagerduty.ResourceServices,
	pagerduty.ResourceSchedules,
	pagerduty.ResourceIncidents,
}

// Service drives full sync runs: page through each entity type in dependency
// order, map and upsert every record, then rewrite the many-to-many
// association sets. At most one run is active per Service.
type Service struct {
	store  Store
	fetch  fetchFunc
	logger *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	current *models.RunSummary
	last    *models.RunSummary

	onProgress func(string)
	onFinished func(models.RunSummary)
}

// New constructs a sync Service over the given store and fetcher.
func New(store Store, fetcher Fetcher, logger *logging.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:  store,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		fetch: func(ctx context.Context, resource string) PageIter {
			return fetcher.Pages(ctx, resource, nil)
		},
	}
}

// newWithFetchFunc is the test seam: identical to New but takes the raw
// iterator factory.
func newWithFetchFunc(store Store, fetch fetchFunc, logger *logging.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{store: store, fetch: fetch, logger: logger, ctx: ctx, cancel: cancel}
}

// OnProgress registers a callback receiving human-readable progress lines,
// e.g. for the websocket feed.
func (s *Service) OnProgress(fn func(string)) {
	s.onProgress = fn
}

// OnFinished registers a callback invoked with the final summary of each run.
func (s *Service) OnFinished(fn func(models.RunSummary)) {
	s.onFinished = fn
}

// Stop aborts an in-progress run at the next stage boundary.
func (s *Service) Stop() {
	s.cancel()
}

// StartRun begins a sync run in the background. It returns a snapshot of the
// freshly started run, or ErrSyncInProgress when one is already active.
// The live summary is handed to the run goroutine, which owns it exclusively;
// s.current only ever holds clones, so Status never reads a mutating record.
func (s *Service) StartRun() (models.RunSummary, error) {
	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return models.RunSummary{}, ErrSyncInProgress
	}
	run := newRunSummary()
	run.StartedAt = time.Now()
	run.State = models.RunFetching
	snapshot := run.Clone()
	s.current = &snapshot
	caller := run.Clone()
	s.mu.Unlock()

	go s.execute(run)
	return caller, nil
}

// Status returns the active run if any, otherwise the last finished run.
// The second return value reports whether any run has ever been recorded.
func (s *Service) Status() (models.RunSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return s.current.Clone(), true
	}
	if s.last != nil {
		return s.last.Clone(), true
	}
	return models.RunSummary{}, false
}

func newRunSummary() *models.RunSummary {
	stages := make(map[string]*models.StageSummary, len(stageOrder))
	for _, resource := range stageOrder {
		stages[resource] = &models.StageSummary{Status: models.StagePending}
	}
	return &models.RunSummary{
		ID:     uuid.New().String(),
		State:  models.RunPending,
		Stages: stages,
	}
}

// execute runs all stages. The summary is owned exclusively by this
// goroutine; snapshots are published under the mutex at stage boundaries.
func (s *Service) execute(run *models.RunSummary) {
	s.emit(fmt.Sprintf("run %s started", run.ID))

	acc := newAccumulator()
	for _, resource := range stageOrder {
		if err := s.ctx.Err(); err != nil {
			st := run.Stages[resource]
			st.Status = models.StageFailed
			st.Error = err.Error()
			continue
		}
		st := run.Stages[resource]
		s.syncStage(resource, st, acc)
		s.publish(run)
		s.emit(fmt.Sprintf("stage %s: fetched=%d upserted=%d skipped=%d failed=%d status=%s",
			resource, st.Fetched, st.Upserted, st.Skipped, st.Failed, st.Status))
	}

	run.State = models.RunLinking
	s.publish(run)
	s.linkStage(run, acc)

	if run.HasFailedStage() {
		run.State = models.RunPartiallyFailed
	} else {
		run.State = models.RunCompleted
	}
	run.FinishedAt = time.Now()

	s.mu.Lock()
	s.last = run
	s.current = nil
	final := run.Clone()
	s.mu.Unlock()

	s.emit(fmt.Sprintf("run %s finished: %s", final.ID, final.State))
	s.logger.Infof("Sync run %s finished with state %s (dropped links: %d)", final.ID, final.State, final.DroppedLinks)
	if s.onFinished != nil {
		s.onFinished(final)
	}
}

// syncStage pages through one entity type, mapping and upserting each record.
// Malformed records are skipped, write failures tallied; a fetch failure
// marks the stage failed without aborting the run.
func (s *Service) syncStage(resource string, st *models.StageSummary, acc *accumulator) {
	iter := s.fetch(s.ctx, resource)
	for iter.Next() {
		for _, raw := range iter.Page().Records {
			st.Fetched++
			if err := s.applyRecord(resource, raw, acc); err != nil {
				var mapErr *pagerduty.MappingError
				if errors.As(err, &mapErr) {
					st.Skipped++
					s.logger.Warnf("Skipping malformed %s record: %v", resource, err)
				} else {
					st.Failed++
					s.logger.Errorf("Failed to store %s record: %v", resource, err)
				}
				continue
			}
			st.Upserted++
		}
	}
	if err := iter.Err(); err != nil {
		st.Status = models.StageFailed
		st.Error = err.Error()
		s.logger.Errorf("Stage %s failed: %v", resource, err)
		return
	}
	st.Status = models.StageOK
}

// applyRecord maps one raw record, upserts it, and accumulates its inline
// association references for the linking pass.
func (s *Service) applyRecord(resource string, raw json.RawMessage, acc *accumulator) error {
	switch resource {
	case pagerduty.ResourceTeams:
		t, err := pagerduty.MapTeam(raw)
		if err != nil {
			return err
		}
		id, err := s.store.UpsertTeam(s.ctx, t)
		if err != nil {
			return err
		}
		acc.record(resource, t.PagerDutyID, id)

	case pagerduty.ResourceEscalationPolicies:
		p, err := pagerduty.MapEscalationPolicy(raw)
		if err != nil {
			return err
		}
		id, err := s.store.UpsertEscalationPolicy(s.ctx, p)
		if err != nil {
			return err
		}
		acc.record(resource, p.PagerDutyID, id)
		acc.link(models.RelEscalationPolicyTeams, resource, p.PagerDutyID, pagerduty.ResourceTeams, p.TeamIDs)

	case pagerduty.ResourceUsers:
		u, err := pagerduty.MapUser(raw)
		if err != nil {
			return err
		}
		id, err := s.store.UpsertUser(s.ctx, u)
		if err != nil {
			return err
		}
		acc.record(resource, u.PagerDutyID, id)
		acc.link(models.RelUserTeams, resource, u.PagerDutyID, pagerduty.ResourceTeams, u.TeamIDs)

	case pagerduty.ResourceServices:
		svc, err := pagerduty.MapService(raw)
		if err != nil {
			return err
		}
		id, err := s.store.UpsertService(s.ctx, svc)
		if err != nil {
			return err
		}
		acc.record(resource, svc.PagerDutyID, id)
		acc.link(models.RelServiceTeams, resource, svc.PagerDutyID, pagerduty.ResourceTeams, svc.TeamIDs)

	case pagerduty.ResourceSchedules:
		sched, err := pagerduty.MapSchedule(raw)
		if err != nil {
			return err
		}
		id, err := s.store.UpsertSchedule(s.ctx, sched)
		if err != nil {
			return err
		}
		acc.record(resource, sched.PagerDutyID, id)
		acc.link(models.RelScheduleUsers, resource, sched.PagerDutyID, pagerduty.ResourceUsers, sched.UserIDs)
		acc.link(models.RelScheduleTeams, resource, sched.PagerDutyID, pagerduty.ResourceTeams, sched.TeamIDs)
		acc.shift(sched.PagerDutyID, sched.Shifts)

	case pagerduty.ResourceIncidents:
		inc, err := pagerduty.MapIncident(raw)
		if err != nil {
			return err
		}
		if _, err := s.store.UpsertIncident(s.ctx, inc); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown resource %q", resource)
	}
	return nil
}

// linkStage rewrites the association set of every owner synced this run,
// including owners whose upstream set became empty: that is what clears stale
// links. Members never seen this run are dropped with a warning rather than
// written as dangling references.
func (s *Service) linkStage(run *models.RunSummary, acc *accumulator) {
	for _, ls := range acc.links {
		ownerID, ok := acc.lookup(ls.ownerResource, ls.ownerExt)
		if !ok {
			// Owner upsert failed earlier; its tally already covers it.
			continue
		}
		memberIDs := make([]int64, 0, len(ls.memberExts))
		for _, ext := range ls.memberExts {
			id, ok := acc.lookup(ls.memberResource, ext)
			if !ok {
				run.DroppedLinks++
				s.logger.Warnf("Dropping %s link %s->%s: member not synced this run", ls.relation, ls.ownerExt, ext)
				continue
			}
			memberIDs = append(memberIDs, id)
		}
		if err := s.store.ReplaceLinks(s.ctx, ls.relation, ownerID, memberIDs); err != nil {
			run.LinkFailures++
			s.logger.Errorf("Failed to rewrite %s links for %s: %v", ls.relation, ls.ownerExt, err)
		}
	}

	for _, sh := range acc.shifts {
		scheduleID, ok := acc.lookup(pagerduty.ResourceSchedules, sh.scheduleExt)
		if !ok {
			continue
		}
		resolved := make([]db.ResolvedShift, 0, len(sh.shifts))
		for _, shift := range sh.shifts {
			userID, ok := acc.lookup(pagerduty.ResourceUsers, shift.UserID)
			if !ok {
				run.DroppedLinks++
				s.logger.Warnf("Dropping shift for schedule %s: user %s not synced this run", sh.scheduleExt, shift.UserID)
				continue
			}
			resolved = append(resolved, db.ResolvedShift{UserID: userID, Start: shift.Start, End: shift.End})
		}
		if err := s.store.ReplaceScheduleShifts(s.ctx, scheduleID, resolved); err != nil {
			run.LinkFailures++
			s.logger.Errorf("Failed to rewrite shifts for schedule %s: %v", sh.scheduleExt, err)
		}
	}
}

func (s *Service) publish(run *models.RunSummary) {
	s.mu.Lock()
	if s.current != nil && s.current.ID == run.ID {
		snapshot := run.Clone()
		s.current = &snapshot
	}
	s.mu.Unlock()
}

func (s *Service) emit(line string) {
	if s.onProgress != nil {
		s.onProgress(line)
	}
}
