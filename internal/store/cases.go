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
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bcem/supportdesk/internal/apperr"
	"github.com/bcem/supportdesk/internal/models"
)

const caseColumns = `
	id, external_id, source, sender_email, sender_name, subject, body,
	client_token, attachment_text, sentiment, request_category, issue_summary,
	sender_full_name, object_name, sender_phone, device_type, serial_numbers,
	priority, ai_reply, operator_required, operator_reason, notified_at,
	classification_status, classification_error, classification_cycle, status, completed_at,
	reply_sent, reply_sent_at, reply_text, received_at, created_at, updated_at`

// CreateCase inserts a new open, pending case and returns its id.
// A case whose external id already exists yields a CONFLICT error.
func (s *Store) CreateCase(ctx context.Context, c *models.Case) (int64, error) {
	source := c.Source
	if source == "" {
		source = models.SourceEmail
	}
	priority := c.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO cases
			(external_id, source, sender_email, sender_name, subject, body,
			 client_token, sender_full_name, object_name, sender_phone,
			 device_type, serial_numbers, priority, received_at,
			 status, classification_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 'open', 'pending')
		ON CONFLICT DO NOTHING
		RETURNING id
	`, c.ExternalID, string(source), c.SenderEmail, c.SenderName, c.Subject, c.Body,
		c.ClientToken, c.SenderFullName, c.ObjectName, c.SenderPhone,
		c.DeviceType, nonNil(c.SerialNumbers), string(priority), c.ReceivedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		ext := ""
		if c.ExternalID != nil {
			ext = *c.ExternalID
		}
		return 0, apperr.Conflict("case with external id %q already exists", ext)
	}
	if err != nil {
		return 0, fmt.Errorf("insert case: %w", err)
	}
	return id, nil
}

// FindByExternalID returns the id of the case holding the external id.
func (s *Store) FindByExternalID(ctx context.Context, externalID string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRow(ctx, `SELECT id FROM cases WHERE external_id = $1`, externalID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup external id: %w", err)
	}
	return id, true, nil
}

// GetCase retrieves a single case by id.
func (s *Store) GetCase(ctx context.Context, id int64) (*models.Case, error) {
	row := s.db.QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1`, id)
	c, err := scanCase(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("case", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get case %d: %w", id, err)
	}
	return c, nil
}

// SetAttachmentText stores the concatenated attachment extraction.
func (s *Store) SetAttachmentText(ctx context.Context, id int64, text string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE cases SET attachment_text = $2, updated_at = NOW() WHERE id = $1
	`, id, text)
	return err
}

// MarkPending starts a new classification cycle, used when new attachments
// are added or a re-analysis is requested. A run still working on the
// previous cycle can no longer write its result.
func (s *Store) MarkPending(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE cases SET
			classification_status = 'pending',
			classification_error = '',
			classification_cycle = classification_cycle + 1,
			updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("case", id)
	}
	return nil
}

// ApplyClassification writes enrichment fields computed for cycle and moves
// the case from pending to done. Identity fields already holding a value are
// kept, the escalation flag is only ever raised here, and a case that is no
// longer pending in that cycle is left untouched (CONFLICT).
func (s *Store) ApplyClassification(ctx context.Context, id, cycle int64, cls models.Classification) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE cases SET
			sentiment = $2,
			request_category = $3,
			issue_summary = COALESCE(NULLIF($4::text, ''), issue_summary),
			sender_full_name = COALESCE(NULLIF(sender_full_name, ''), $5::text),
			object_name = COALESCE(NULLIF(object_name, ''), $6::text),
			sender_phone = COALESCE(NULLIF(sender_phone, ''), $7::text),
			device_type = COALESCE(NULLIF(device_type, ''), $8::text),
			serial_numbers = CASE WHEN cardinality(serial_numbers) = 0 THEN $9::text[] ELSE serial_numbers END,
			priority = $10,
			ai_reply = $11,
			operator_required = operator_required OR $12,
			operator_reason = CASE WHEN $12 AND operator_reason = '' THEN $13 ELSE operator_reason END,
			classification_status = 'done',
			classification_error = '',
			updated_at = NOW()
		WHERE id = $1 AND classification_status = 'pending' AND classification_cycle = $14::bigint
	`, id, string(cls.Sentiment), models.NormalizeCategory(cls.RequestCategory), cls.IssueSummary,
		cls.SenderFullName, cls.ObjectName, cls.SenderPhone, cls.DeviceType,
		nonNil(cls.SerialNumbers), string(cls.Priority), cls.Reply,
		cls.OperatorRequired, cls.OperatorReason, cycle,
	)
	if err != nil {
		return fmt.Errorf("apply classification to case %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("case %d is not pending classification in cycle %d", id, cycle)
	}
	return nil
}

// MarkClassificationFailed moves a pending case to failed with a short
// error. A cycle of 0 matches whatever cycle is current, for runs that
// failed before the case could be loaded.
func (s *Store) MarkClassificationFailed(ctx context.Context, id, cycle int64, msg string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE cases SET classification_status = 'failed', classification_error = $2, updated_at = NOW()
		WHERE id = $1 AND classification_status = 'pending' AND ($3::bigint = 0 OR classification_cycle = $3::bigint)
	`, id, truncate(msg, 500), cycle)
	return err
}

// MarkNotified sets notified_at if it is still unset. It reports whether
// this call set it.
func (s *Store) MarkNotified(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE cases SET notified_at = $2, updated_at = NOW() WHERE id = $1 AND notified_at IS NULL
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark case %d notified: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkReplied records a delivered reply and completes the case in a single
// statement, so completed_at is set exactly when status becomes completed.
func (s *Store) MarkReplied(ctx context.Context, id int64, text string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE cases SET
			reply_text = $2,
			reply_sent = TRUE,
			reply_sent_at = $3,
			status = 'completed',
			completed_at = $3,
			updated_at = NOW()
		WHERE id = $1
	`, id, text, at)
	if err != nil {
		return fmt.Errorf("mark case %d replied: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("case", id)
	}
	return nil
}

// DeleteCompletedBefore removes completed cases whose completed_at is
// strictly before cutoff and returns their ids. Attachments, messages and
// analysis records cascade.
func (s *Store) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
		DELETE FROM cases WHERE status = 'completed' AND completed_at < $1 RETURNING id
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("delete completed cases: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListPendingIDs returns up to limit ids of cases still awaiting
// classification and last touched before the given time, oldest first.
func (s *Store) ListPendingIDs(ctx context.Context, before time.Time, limit int) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM cases
		WHERE classification_status = 'pending' AND updated_at < $1
		ORDER BY id LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending cases: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// DeleteCase removes a case and its attachments.
func (s *Store) DeleteCase(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM cases WHERE id = $1`, id)
	return err
}

// AddAttachment inserts an attachment record and returns its id.
func (s *Store) AddAttachment(ctx context.Context, a *models.Attachment) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO case_attachments (case_id, filename, content_type, size_bytes, storage_path)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, a.CaseID, a.Filename, a.ContentType, a.SizeBytes, a.StoragePath).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert attachment: %w", err)
	}
	return id, nil
}

// ListAttachments returns a case's attachments in upload order.
func (s *Store) ListAttachments(ctx context.Context, caseID int64) ([]models.Attachment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, case_id, filename, content_type, size_bytes, storage_path, created_at
		FROM case_attachments
		WHERE case_id = $1
		ORDER BY id
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Attachment
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(&a.ID, &a.CaseID, &a.Filename, &a.ContentType, &a.SizeBytes, &a.StoragePath, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// scanCase scans a single row into a Case.
func scanCase(row pgx.Row) (*models.Case, error) {
	var (
		c                 models.Case
		source, priority  string
		status, clsStatus string
		sentiment         *string
	)
	err := row.Scan(
		&c.ID, &c.ExternalID, &source, &c.SenderEmail, &c.SenderName, &c.Subject, &c.Body,
		&c.ClientToken, &c.AttachmentText, &sentiment, &c.RequestCategory, &c.IssueSummary,
		&c.SenderFullName, &c.ObjectName, &c.SenderPhone, &c.DeviceType, &c.SerialNumbers,
		&priority, &c.AIReply, &c.OperatorRequired, &c.OperatorReason, &c.NotifiedAt,
		&clsStatus, &c.ClassificationError, &c.ClassificationCycle, &status, &c.CompletedAt,
		&c.ReplySent, &c.ReplySentAt, &c.ReplyText, &c.ReceivedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Source = models.Source(source)
	c.Priority = models.Priority(priority)
	c.Status = models.Status(status)
	c.ClassificationStatus = models.ClassificationStatus(clsStatus)
	if sentiment != nil {
		v := models.Sentiment(*sentiment)
		c.Sentiment = &v
	}
	return &c, nil
}

// collectCases scans multiple rows into a slice of Cases.
func collectCases(rows pgx.Rows) ([]models.Case, error) {
	var out []models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
