package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagerduty-analytics/internal/db"
	"pagerduty-analytics/internal/logging"
	"pagerduty-analytics/internal/models"
	"pagerduty-analytics/internal/pagerduty"
)

// fakeIter replays precanned pages and an optional terminal error.
type fakeIter struct {
	pages []*pagerduty.Page
	err   error
	pos   int
}

func (it *fakeIter) Next() bool {
	if it.pos >= len(it.pages) {
		return false
	}
	it.pos++
	return true
}

func (it *fakeIter) Page() *pagerduty.Page { return it.pages[it.pos-1] }

func (it *fakeIter) Err() error {
	if it.pos >= len(it.pages) {
		return it.err
	}
	return nil
}

// fakeFetcher serves raw JSON records per resource, one page per resource.
type fakeFetcher struct {
	records map[string][]string
	errs    map[string]error
}

func (f *fakeFetcher) iter(ctx context.Context, resource string) PageIter {
	if err, ok := f.errs[resource]; ok {
		return &fakeIter{err: err}
	}
	raws := make([]json.RawMessage, 0, len(f.records[resource]))
	for _, r := range f.records[resource] {
		raws = append(raws, json.RawMessage(r))
	}
	if len(raws) == 0 {
		return &fakeIter{}
	}
	return &fakeIter{pages: []*pagerduty.Page{{Records: raws}}}
}

// fakeStore assigns sequential surrogate ids per external id and records
// every link and shift rewrite.
type fakeStore struct {
	nextID     int64
	ids        map[string]int64
	upserts    map[string]int
	links      map[string][]int64
	shifts     map[int64][]db.ResolvedShift
	failUpsert map[string]error
	failLinks  map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		ids:        map[string]int64{},
		upserts:    map[string]int{},
		links:      map[string][]int64{},
		shifts:     map[int64][]db.ResolvedShift{},
		failUpsert: map[string]error{},
		failLinks:  map[string]error{},
	}
}

func (s *fakeStore) assign(extID string) (int64, error) {
	if err, ok := s.failUpsert[extID]; ok {
		return 0, err
	}
	s.upserts[extID]++
	if id, ok := s.ids[extID]; ok {
		return id, nil
	}
	s.nextID++
	s.ids[extID] = s.nextID
	return s.nextID, nil
}

func (s *fakeStore) UpsertTeam(ctx context.Context, t models.Team) (int64, error) {
	return s.assign(t.PagerDutyID)
}
func (s *fakeStore) UpsertEscalationPolicy(ctx context.Context, p models.EscalationPolicy) (int64, error) {
	return s.assign(p.PagerDutyID)
}
func (s *fakeStore) UpsertUser(ctx context.Context, u models.User) (int64, error) {
	return s.assign(u.PagerDutyID)
}
func (s *fakeStore) UpsertService(ctx context.Context, svc models.Service) (int64, error) {
	return s.assign(svc.PagerDutyID)
}
func (s *fakeStore) UpsertSchedule(ctx context.Context, sched models.Schedule) (int64, error) {
	return s.assign(sched.PagerDutyID)
}
func (s *fakeStore) UpsertIncident(ctx context.Context, i models.Incident) (int64, error) {
	return s.assign(i.PagerDutyID)
}

func (s *fakeStore) ReplaceLinks(ctx context.Context, relation string, ownerID int64, memberIDs []int64) error {
	if err, ok := s.failLinks[relation]; ok {
		return err
	}
	s.links[fmt.Sprintf("%s/%d", relation, ownerID)] = memberIDs
	return nil
}

func (s *fakeStore) ReplaceScheduleShifts(ctx context.Context, scheduleID int64, shifts []db.ResolvedShift) error {
	s.shifts[scheduleID] = shifts
	return nil
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.New(t.TempDir(), "debug")
	require.NoError(t, err)
	t.Cleanup(logger.Close)
	return logger
}

// runToCompletion starts one run and blocks until its final summary arrives.
func runToCompletion(t *testing.T, store *fakeStore, fetcher *fakeFetcher) models.RunSummary {
	t.Helper()
	svc := newWithFetchFunc(store, fetcher.iter, testLogger(t))
	done := make(chan models.RunSummary, 1)
	svc.OnFinished(func(run models.RunSummary) { done <- run })

	_, err := svc.StartRun()
	require.NoError(t, err)

	select {
	case run := <-done:
		return run
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
		return models.RunSummary{}
	}
}

func fullDataset() *fakeFetcher {
	return &fakeFetcher{records: map[string][]string{
		pagerduty.ResourceTeams: {
			`{"id": "T1", "name": "Platform"}`,
			`{"id": "T2", "name": "Payments"}`,
		},
		pagerduty.ResourceEscalationPolicies: {
			`{"id": "EP1", "name": "Default", "teams": [{"id": "T1"}]}`,
		},
		pagerduty.ResourceUsers: {
			`{"id": "U1", "name": "Alice", "email": "alice@example.com", "teams": [{"id": "T1"}, {"id": "T2"}]}`,
			`{"id": "U2", "name": "Bob", "email": "bob@example.com"}`,
		},
		pagerduty.ResourceServices: {
			`{"id": "S1", "name": "Checkout", "status": "active",
			  "escalation_policy": {"id": "EP1"}, "teams": [{"id": "T2"}]}`,
		},
		pagerduty.ResourceSchedules: {
			`{"id": "SCH1", "name": "Primary", "users": [{"id": "U1"}],
			  "final_schedule": {"rendered_schedule_entries": [
				{"start": "2024-06-01T00:00:00Z", "end": "2024-06-02T00:00:00Z", "user": {"id": "U1"}}
			  ]}}`,
		},
		pagerduty.ResourceIncidents: {
			`{"id": "I1", "created_at": "2024-06-01T10:00:00Z", "service": {"id": "S1"}}`,
		},
	}}
}

func TestRunSyncsAllStagesInOrder(t *testing.T) {
	store := newFakeStore()
	run := runToCompletion(t, store, fullDataset())

	assert.Equal(t, models.RunCompleted, run.State)
	for resource, st := range run.Stages {
		assert.Equal(t, models.StageOK, st.Status, resource)
		assert.Zero(t, st.Skipped, resource)
		assert.Zero(t, st.Failed, resource)
	}
	assert.Equal(t, 2, run.Stages[pagerduty.ResourceTeams].Upserted)
	assert.Equal(t, 1, run.Stages[pagerduty.ResourceIncidents].Upserted)
	assert.Zero(t, run.DroppedLinks)
	assert.Zero(t, run.LinkFailures)

	// Link sets translate external ids into the store's surrogate ids.
	assert.Equal(t, []int64{store.ids["T1"]},
		store.links[fmt.Sprintf("%s/%d", models.RelEscalationPolicyTeams, store.ids["EP1"])])
	assert.Equal(t, []int64{store.ids["T1"], store.ids["T2"]},
		store.links[fmt.Sprintf("%s/%d", models.RelUserTeams, store.ids["U1"])])
	assert.Equal(t, []int64{store.ids["T2"]},
		store.links[fmt.Sprintf("%s/%d", models.RelServiceTeams, store.ids["S1"])])

	shifts := store.shifts[store.ids["SCH1"]]
	require.Len(t, shifts, 1)
	assert.Equal(t, store.ids["U1"], shifts[0].UserID)
}

func TestRunIsIdempotent(t *testing.T) {
	store := newFakeStore()
	svc := newWithFetchFunc(store, fullDataset().iter, testLogger(t))
	done := make(chan models.RunSummary, 2)
	svc.OnFinished(func(run models.RunSummary) { done <- run })

	for i := 0; i < 2; i++ {
		_, err := svc.StartRun()
		require.NoError(t, err)
		select {
		case run := <-done:
			assert.Equal(t, models.RunCompleted, run.State)
		case <-time.After(5 * time.Second):
			t.Fatal("run did not finish")
		}
	}

	// Same external ids map to the same surrogate ids across runs.
	assert.Equal(t, 2, store.upserts["T1"])
	assert.Equal(t, 2, store.upserts["S1"])
	assert.Len(t, store.ids, 8)
}

func TestRunRejectsConcurrentStart(t *testing.T) {
	store := newFakeStore()
	release := make(chan struct{})
	blocking := func(ctx context.Context, resource string) PageIter {
		<-release
		return &fakeIter{}
	}
	svc := newWithFetchFunc(store, blocking, testLogger(t))
	done := make(chan models.RunSummary, 1)
	svc.OnFinished(func(run models.RunSummary) { done <- run })

	first, err := svc.StartRun()
	require.NoError(t, err)

	_, err = svc.StartRun()
	assert.ErrorIs(t, err, ErrSyncInProgress)

	status, ok := svc.Status()
	require.True(t, ok)
	assert.Equal(t, first.ID, status.ID)

	close(release)
	<-done

	// A finished run frees the slot.
	_, err = svc.StartRun()
	require.NoError(t, err)
	<-done
}

func TestRunSkipsMalformedRecords(t *testing.T) {
	fetcher := fullDataset()
	fetcher.records[pagerduty.ResourceUsers] = append(fetcher.records[pagerduty.ResourceUsers],
		`{"id": "U3", "name": "No Email"}`)

	store := newFakeStore()
	run := runToCompletion(t, store, fetcher)

	assert.Equal(t, models.RunCompleted, run.State)
	st := run.Stages[pagerduty.ResourceUsers]
	assert.Equal(t, 3, st.Fetched)
	assert.Equal(t, 2, st.Upserted)
	assert.Equal(t, 1, st.Skipped)
	assert.NotContains(t, store.ids, "U3")
}

func TestRunContinuesPastFailedStage(t *testing.T) {
	fetcher := fullDataset()
	fetcher.errs = map[string]error{
		pagerduty.ResourceServices: &pagerduty.FetchError{Resource: pagerduty.ResourceServices, Attempts: 3, Err: fmt.Errorf("status 429")},
	}

	store := newFakeStore()
	run := runToCompletion(t, store, fetcher)

	assert.Equal(t, models.RunPartiallyFailed, run.State)
	assert.Equal(t, models.StageFailed, run.Stages[pagerduty.ResourceServices].Status)
	assert.NotEmpty(t, run.Stages[pagerduty.ResourceServices].Error)

	// Later stages still ran.
	assert.Equal(t, models.StageOK, run.Stages[pagerduty.ResourceSchedules].Status)
	assert.Contains(t, store.ids, "SCH1")
}

func TestRunDropsLinksToUnsyncedMembers(t *testing.T) {
	fetcher := fullDataset()
	fetcher.records[pagerduty.ResourceUsers] = []string{
		`{"id": "U1", "name": "Alice", "email": "alice@example.com", "teams": [{"id": "T9"}]}`,
	}
	fetcher.records[pagerduty.ResourceSchedules] = nil

	store := newFakeStore()
	run := runToCompletion(t, store, fetcher)

	assert.Equal(t, models.RunCompleted, run.State)
	assert.Equal(t, 1, run.DroppedLinks)
	assert.Empty(t, store.links[fmt.Sprintf("%s/%d", models.RelUserTeams, store.ids["U1"])])
}

func TestRunClearsStaleLinkSets(t *testing.T) {
	store := newFakeStore()
	runToCompletion(t, store, fullDataset())

	key := fmt.Sprintf("%s/%d", models.RelUserTeams, store.ids["U1"])
	require.Len(t, store.links[key], 2)

	// Second run reports U1 with no teams; the set must be rewritten empty.
	fetcher := fullDataset()
	fetcher.records[pagerduty.ResourceUsers] = []string{
		`{"id": "U1", "name": "Alice", "email": "alice@example.com", "teams": []}`,
	}
	fetcher.records[pagerduty.ResourceSchedules] = nil
	run := runToCompletion(t, store, fetcher)

	assert.Equal(t, models.RunCompleted, run.State)
	assert.Empty(t, store.links[key])
}

func TestRunCountsWriteFailures(t *testing.T) {
	store := newFakeStore()
	store.failUpsert["T2"] = fmt.Errorf("write failed")

	run := runToCompletion(t, store, fullDataset())

	st := run.Stages[pagerduty.ResourceTeams]
	assert.Equal(t, 2, st.Fetched)
	assert.Equal(t, 1, st.Upserted)
	assert.Equal(t, 1, st.Failed)
	// A write failure is not a stage failure; the run still completes.
	assert.Equal(t, models.StageOK, st.Status)
}

func TestRunCountsLinkFailures(t *testing.T) {
	store := newFakeStore()
	store.failLinks[models.RelUserTeams] = fmt.Errorf("deadlock")

	run := runToCompletion(t, store, fullDataset())

	// Both users record a user_teams set (U2's is empty), so both rewrites
	// fail and each one is tallied.
	assert.Equal(t, 2, run.LinkFailures)
	assert.Equal(t, models.RunCompleted, run.State)
}

func TestStartRunSnapshotAndStatusStayIsolated(t *testing.T) {
	store := newFakeStore()
	svc := newWithFetchFunc(store, fullDataset().iter, testLogger(t))
	done := make(chan models.RunSummary, 1)
	svc.OnFinished(func(run models.RunSummary) { done <- run })

	run, err := svc.StartRun()
	require.NoError(t, err)
	assert.Equal(t, models.RunFetching, run.State)
	assert.False(t, run.StartedAt.IsZero())

	// Poll Status concurrently with the run goroutine; every snapshot must be
	// a consistent copy of this run, never the record the run is mutating.
	for {
		select {
		case final := <-done:
			assert.Equal(t, models.RunCompleted, final.State)
			status, ok := svc.Status()
			require.True(t, ok)
			assert.Equal(t, run.ID, status.ID)
			return
		default:
			if status, ok := svc.Status(); ok {
				assert.Equal(t, run.ID, status.ID)
			}
		}
	}
}

func TestStatusBeforeAnyRun(t *testing.T) {
	svc := newWithFetchFunc(newFakeStore(), fullDataset().iter, testLogger(t))
	_, ok := svc.Status()
	assert.False(t, ok)
}

var _ Fetcher = (*pagerduty.Client)(nil)
var _ Store = (*db.DB)(nil)
