package db

import (
	"context"
	"fmt"
)

// Setup creates the schema if it does not exist yet. Entities carry an
// internal surrogate key plus the unique upstream identifier; association
// tables reference internal keys only. Sync never deletes entity rows, so
// there are no cascade rules on the entity tables themselves.
func (d *DB) Setup(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS teams (
			id BIGSERIAL PRIMARY KEY,
			pagerduty_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS escalation_policies (
			id BIGSERIAL PRIMARY KEY,
			pagerduty_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			num_loops INT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			pagerduty_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS services (
			id BIGSERIAL PRIMARY KEY,
			pagerduty_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'unknown',
			escalation_policy_id BIGINT REFERENCES escalation_policies(id),
			created_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ,
			last_incident_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id BIGSERIAL PRIMARY KEY,
			pagerduty_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			time_zone TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS incidents (
			id BIGSERIAL PRIMARY KEY,
			pagerduty_id TEXT NOT NULL UNIQUE,
			incident_number BIGINT,
			title TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			urgency TEXT NOT NULL,
			service_id BIGINT NOT NULL REFERENCES services(id),
			created_at TIMESTAMPTZ NOT NULL,
			resolved_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_service_id ON incidents(service_id)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(status)`,
		`CREATE TABLE IF NOT EXISTS service_teams (
			service_id BIGINT NOT NULL REFERENCES services(id),
			team_id BIGINT NOT NULL REFERENCES teams(id),
			PRIMARY KEY (service_id, team_id)
		)`,
		`CREATE TABLE IF NOT EXISTS escalation_policy_teams (
			escalation_policy_id BIGINT NOT NULL REFERENCES escalation_policies(id),
			team_id BIGINT NOT NULL REFERENCES teams(id),
			PRIMARY KEY (escalation_policy_id, team_id)
		)`,
		`CREATE TABLE IF NOT EXISTS user_teams (
			user_id BIGINT NOT NULL REFERENCES users(id),
			team_id BIGINT NOT NULL REFERENCES teams(id),
			PRIMARY KEY (user_id, team_id)
		)`,
		`CREATE TABLE IF NOT EXISTS schedule_users (
			schedule_id BIGINT NOT NULL REFERENCES schedules(id),
			user_id BIGINT NOT NULL REFERENCES users(id),
			PRIMARY KEY (schedule_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS schedule_teams (
			schedule_id BIGINT NOT NULL REFERENCES schedules(id),
			team_id BIGINT NOT NULL REFERENCES teams(id),
			PRIMARY KEY (schedule_id, team_id)
		)`,
		`CREATE TABLE IF NOT EXISTS schedule_shifts (
			id BIGSERIAL PRIMARY KEY,
			schedule_id BIGINT NOT NULL REFERENCES schedules(id),
			user_id BIGINT NOT NULL REFERENCES users(id),
			start_at TIMESTAMPTZ NOT NULL,
			end_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedule_shifts_user_id ON schedule_shifts(user_id)`,
	}

	for _, stmt := range statements {
		if _, err := d.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
