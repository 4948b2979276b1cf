// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store provides the Postgres-backed case repository: cases with
// their attachments, message threads and analysis records, dashboard
// aggregates, and the knowledge articles used for context retrieval.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides CRUD and list operations over cases in Postgres.
// Writes are last-write-wins except classification results, which are
// guarded by the case's classification cycle.
type Store struct {
	db DB
}

// NewStore creates a store backed by the given pool and ensures the schema.
func NewStore(ctx context.Context, db DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure case schema: %w", err)
	}
	slog.Info("case store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS cases (
			id                    BIGSERIAL PRIMARY KEY,
			external_id           TEXT,
			source                TEXT NOT NULL DEFAULT 'email',
			sender_email          TEXT NOT NULL,
			sender_name           TEXT NOT NULL DEFAULT '',
			subject               TEXT NOT NULL DEFAULT '',
			body                  TEXT NOT NULL DEFAULT '',
			client_token          TEXT NOT NULL DEFAULT '',
			attachment_text       TEXT NOT NULL DEFAULT '',
			sentiment             TEXT,
			request_category      TEXT,
			issue_summary         TEXT NOT NULL DEFAULT '',
			sender_full_name      TEXT NOT NULL DEFAULT '',
			object_name           TEXT NOT NULL DEFAULT '',
			sender_phone          TEXT NOT NULL DEFAULT '',
			device_type           TEXT NOT NULL DEFAULT '',
			serial_numbers        TEXT[] NOT NULL DEFAULT '{}',
			priority              TEXT NOT NULL DEFAULT 'medium',
			ai_reply              TEXT NOT NULL DEFAULT '',
			operator_required     BOOLEAN NOT NULL DEFAULT FALSE,
			operator_reason       TEXT NOT NULL DEFAULT '',
			notified_at           TIMESTAMPTZ,
			classification_status TEXT NOT NULL DEFAULT 'pending',
			classification_error  TEXT NOT NULL DEFAULT '',
			classification_cycle  BIGINT NOT NULL DEFAULT 1,
			status                TEXT NOT NULL DEFAULT 'open',
			completed_at          TIMESTAMPTZ,
			reply_sent            BOOLEAN NOT NULL DEFAULT FALSE,
			reply_sent_at         TIMESTAMPTZ,
			reply_text            TEXT NOT NULL DEFAULT '',
			received_at           TIMESTAMPTZ,
			created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK ((status = 'completed') = (completed_at IS NOT NULL))
		);
		ALTER TABLE cases ADD COLUMN IF NOT EXISTS classification_cycle BIGINT NOT NULL DEFAULT 1;
		CREATE UNIQUE INDEX IF NOT EXISTS uq_cases_external_id ON cases(external_id) WHERE external_id IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(status);
		CREATE INDEX IF NOT EXISTS idx_cases_completed_at ON cases(completed_at);
		CREATE INDEX IF NOT EXISTS idx_cases_created_at ON cases(created_at);

		CREATE TABLE IF NOT EXISTS case_attachments (
			id           BIGSERIAL PRIMARY KEY,
			case_id      BIGINT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
			filename     TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
			size_bytes   BIGINT NOT NULL DEFAULT 0,
			storage_path TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_attachments_case ON case_attachments(case_id);

		CREATE TABLE IF NOT EXISTS case_messages (
			id              BIGSERIAL PRIMARY KEY,
			case_id         BIGINT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
			direction       TEXT NOT NULL,
			channel         TEXT NOT NULL,
			subject         TEXT NOT NULL DEFAULT '',
			sender_email    TEXT NOT NULL DEFAULT '',
			recipient_email TEXT NOT NULL DEFAULT '',
			body            TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_messages_case ON case_messages(case_id);

		CREATE TABLE IF NOT EXISTS case_analyses (
			id                 BIGSERIAL PRIMARY KEY,
			case_id            BIGINT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
			cycle              BIGINT NOT NULL,
			provider           TEXT NOT NULL,
			model_version      TEXT NOT NULL DEFAULT '',
			predicted_category TEXT NOT NULL DEFAULT '',
			confidence         DOUBLE PRECISION NOT NULL DEFAULT 0,
			latency_ms         BIGINT NOT NULL DEFAULT 0,
			fallback           BOOLEAN NOT NULL DEFAULT FALSE,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_analyses_case ON case_analyses(case_id);

		CREATE TABLE IF NOT EXISTS kb_articles (
			id         BIGSERIAL PRIMARY KEY,
			title      TEXT NOT NULL UNIQUE,
			content    TEXT NOT NULL,
			tags       TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}
