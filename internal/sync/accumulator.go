package sync

import "pagerduty-analytics/internal/models"

// linkSet is one owner's full association set for one relation, captured
// during the fetch stages and applied in the linking pass.
type linkSet struct {
	relation       string
	ownerResource  string
	ownerExt       string
	memberResource string
	memberExts     []string
}

type shiftSet struct {
	scheduleExt string
	shifts      []models.ScheduleShift
}

// accumulator collects the external-id to surrogate-id mapping of every
// record upserted during a run, plus the association sets to rewrite once
// all entity types are stored.
type accumulator struct {
	ids    map[string]map[string]int64
	links  []linkSet
	shifts []shiftSet
}

func newAccumulator() *accumulator {
	return &accumulator{ids: make(map[string]map[string]int64)}
}

func (a *accumulator) record(resource, extID string, id int64) {
	m, ok := a.ids[resource]
	if !ok {
		m = make(map[string]int64)
		a.ids[resource] = m
	}
	m[extID] = id
}

func (a *accumulator) lookup(resource, extID string) (int64, bool) {
	id, ok := a.ids[resource][extID]
	return id, ok
}

// link records an owner's member set. Empty sets are recorded too so the
// linking pass clears associations the upstream no longer reports.
func (a *accumulator) link(relation, ownerResource, ownerExt, memberResource string, memberExts []string) {
	a.links = append(a.links, linkSet{
		relation:       relation,
		ownerResource:  ownerResource,
		ownerExt:       ownerExt,
		memberResource: memberResource,
		memberExts:     memberExts,
	})
}

func (a *accumulator) shift(scheduleExt string, shifts []models.ScheduleShift) {
	a.shifts = append(a.shifts, shiftSet{scheduleExt: scheduleExt, shifts: shifts})
}
