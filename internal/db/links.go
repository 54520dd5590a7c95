package db

import (
	"context"
	"fmt"

	"pagerduty-analytics/internal/models"
)

// DanglingReferenceError reports an attempt to link an owner to a member that
// is not present in its entity table. The orchestrator's fetch order makes
// this unreachable in normal operation; the repository still refuses to write
// the orphaned row.
type DanglingReferenceError struct {
	Relation string
	OwnerID  int64
	Missing  int
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("relation %s owner %d: %d member id(s) not present", e.Relation, e.OwnerID, e.Missing)
}

// linkSpec describes one association table.
type linkSpec struct {
	table       string
	ownerCol    string
	memberCol   string
	memberTable string
}

var linkSpecs = map[string]linkSpec{
	models.RelServiceTeams:          {"service_teams", "service_id", "team_id", "teams"},
	models.RelEscalationPolicyTeams: {"escalation_policy_teams", "escalation_policy_id", "team_id", "teams"},
	models.RelUserTeams:             {"user_teams", "user_id", "team_id", "teams"},
	models.RelScheduleUsers:         {"schedule_users", "schedule_id", "user_id", "users"},
	models.RelScheduleTeams:         {"schedule_teams", "schedule_id", "team_id", "teams"},
}

// ReplaceLinks rewrites the association set for one owner wholesale: the
// prior rows are deleted and the new set inserted in a single transaction, so
// a concurrent reader never observes a half-replaced set and stale links from
// removed relationships do not survive the run. Member existence is verified
// in the same transaction; a missing member yields a DanglingReferenceError
// and nothing is written.
func (d *DB) ReplaceLinks(ctx context.Context, relation string, ownerID int64, memberIDs []int64) error {
	spec, ok := linkSpecs[relation]
	if !ok {
		return fmt.Errorf("unknown relation %q", relation)
	}

	members := dedupe(memberIDs)

	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin link rewrite for %s owner %d: %w", relation, ownerID, err)
	}
	defer tx.Rollback(ctx)

	if len(members) > 0 {
		var present int
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE id = ANY($1)`, spec.memberTable)
		if err := tx.QueryRow(ctx, query, members).Scan(&present); err != nil {
			return fmt.Errorf("failed to verify members for %s owner %d: %w", relation, ownerID, err)
		}
		if present != len(members) {
			return &DanglingReferenceError{Relation: relation, OwnerID: ownerID, Missing: len(members) - present}
		}
	}

	del := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, spec.table, spec.ownerCol)
	if _, err := tx.Exec(ctx, del, ownerID); err != nil {
		return fmt.Errorf("failed to clear %s for owner %d: %w", relation, ownerID, err)
	}

	ins := fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES ($1, $2)`, spec.table, spec.ownerCol, spec.memberCol)
	for _, memberID := range members {
		if _, err := tx.Exec(ctx, ins, ownerID, memberID); err != nil {
			return fmt.Errorf("failed to insert %s link %d->%d: %w", relation, ownerID, memberID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit link rewrite for %s owner %d: %w", relation, ownerID, err)
	}
	return nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
