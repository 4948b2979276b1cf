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

package store

import (
	"context"
	"fmt"

	"github.com/bcem/supportdesk/internal/models"
)

// AddMessage appends a message to a case's thread and returns its id.
func (s *Store) AddMessage(ctx context.Context, m *models.Message) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO case_messages (case_id, direction, channel, subject, sender_email, recipient_email, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, m.CaseID, string(m.Direction), string(m.Channel), m.Subject, m.SenderEmail, m.RecipientEmail, m.Body).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert message for case %d: %w", m.CaseID, err)
	}
	return id, nil
}

// ListMessages returns a case's thread in arrival order.
func (s *Store) ListMessages(ctx context.Context, caseID int64) ([]models.Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, case_id, direction, channel, subject, sender_email, recipient_email, body, created_at
		FROM case_messages
		WHERE case_id = $1
		ORDER BY id
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list messages for case %d: %w", caseID, err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var (
			m                  models.Message
			direction, channel string
		)
		if err := rows.Scan(&m.ID, &m.CaseID, &direction, &channel, &m.Subject, &m.SenderEmail, &m.RecipientEmail, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Direction = models.Direction(direction)
		m.Channel = models.Channel(channel)
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecordAnalysis stores the audit record of one classification run.
func (s *Store) RecordAnalysis(ctx context.Context, a *models.Analysis) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO case_analyses
			(case_id, cycle, provider, model_version, predicted_category, confidence, latency_ms, fallback)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.CaseID, a.Cycle, a.Provider, a.ModelVersion, a.PredictedCategory, a.Confidence, a.LatencyMs, a.Fallback)
	if err != nil {
		return fmt.Errorf("record analysis for case %d: %w", a.CaseID, err)
	}
	return nil
}

// ListAnalyses returns a case's analysis records, newest first.
func (s *Store) ListAnalyses(ctx context.Context, caseID int64) ([]models.Analysis, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, case_id, cycle, provider, model_version, predicted_category,
		       confidence, latency_ms, fallback, created_at
		FROM case_analyses
		WHERE case_id = $1
		ORDER BY id DESC
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list analyses for case %d: %w", caseID, err)
	}
	defer rows.Close()

	var out []models.Analysis
	for rows.Next() {
		var a models.Analysis
		if err := rows.Scan(&a.ID, &a.CaseID, &a.Cycle, &a.Provider, &a.ModelVersion, &a.PredictedCategory,
			&a.Confidence, &a.LatencyMs, &a.Fallback, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
