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

// Package reply delivers operator replies to customers and completes the
// case once delivery succeeded.
package reply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bcem/supportdesk/internal/apperr"
	"github.com/bcem/supportdesk/internal/metrics"
	"github.com/bcem/supportdesk/internal/models"
)

// Sender delivers one message and returns its Message-Id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// CaseStore is the persistence the reply service needs.
type CaseStore interface {
	GetCase(ctx context.Context, id int64) (*models.Case, error)
	MarkReplied(ctx context.Context, id int64, text string, at time.Time) error
	AddMessage(ctx context.Context, m *models.Message) (int64, error)
}

// Service sends replies.
type Service struct {
	store  CaseStore
	sender Sender
	now    func() time.Time
}

// NewService creates a reply Service.
func NewService(store CaseStore, sender Sender) *Service {
	return &Service{store: store, sender: sender, now: time.Now}
}

// SendReply delivers text to the case's sender, completes the case and
// appends the reply to the case thread. On transport failure nothing is
// persisted and the caller may retry.
func (s *Service) SendReply(ctx context.Context, caseID int64, text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, apperr.Validation("reply text is required")
	}

	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return time.Time{}, err
	}
	if strings.TrimSpace(c.SenderEmail) == "" {
		return time.Time{}, apperr.Validation("case %d has no sender address", caseID)
	}

	msg := Message{
		To:      c.SenderEmail,
		ToName:  c.SenderName,
		Subject: Subject(c),
		Body:    text,
	}
	if c.Source == models.SourceEmail && c.ExternalID != nil {
		msg.InReplyTo = *c.ExternalID
	}

	messageID, err := s.sender.Send(ctx, msg)
	metrics.Replies.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		slog.Warn("reply delivery failed", "case_id", caseID, "error", err)
		return time.Time{}, apperr.External("smtp", err)
	}

	at := s.now().UTC()
	if err := s.store.MarkReplied(ctx, caseID, text, at); err != nil {
		// The customer already has the reply; only the record is missing.
		slog.Error("reply sent but case not updated", "case_id", caseID, "message_id", messageID, "error", err)
		return time.Time{}, fmt.Errorf("record reply for case %d: %w", caseID, err)
	}

	if _, err := s.store.AddMessage(ctx, &models.Message{
		CaseID:         caseID,
		Direction:      models.DirectionOutbound,
		Channel:        models.ChannelEmail,
		Subject:        msg.Subject,
		RecipientEmail: msg.To,
		Body:           text,
	}); err != nil {
		slog.Error("failed to record outbound message", "case_id", caseID, "error", err)
	}

	slog.Info("reply sent", "case_id", caseID, "message_id", messageID)
	return at, nil
}

// Subject returns the reply subject for c.
func Subject(c *models.Case) string {
	subject := strings.TrimSpace(c.Subject)
	if subject == "" {
		return fmt.Sprintf("Re: Обращение #%d", c.ID)
	}
	if len(subject) >= 3 && strings.EqualFold(subject[:3], "re:") {
		return subject
	}
	return "Re: " + subject
}
