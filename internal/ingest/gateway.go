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

// Package ingest turns inbound messages into persisted cases: noise
// filtering, deduplication, attachment storage and text extraction, then
// hand-off to background classification.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bcem/supportdesk/internal/apperr"
	"github.com/bcem/supportdesk/internal/extract"
	"github.com/bcem/supportdesk/internal/mailbox"
	"github.com/bcem/supportdesk/internal/metrics"
	"github.com/bcem/supportdesk/internal/models"
)

var (
	// ErrPollInProgress is returned when another poll cycle holds the lock.
	ErrPollInProgress = errors.New("mailbox poll already in progress")
	// ErrNoSource is returned when polling without a configured mailbox.
	ErrNoSource = errors.New("no mailbox configured")
)

// Outcome of ingesting one message.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Skip reasons.
const (
	ReasonDuplicate = "duplicate"
	ReasonFiltered  = "filtered"
	ReasonNoSender  = "no_sender"
)

// Result describes what happened to one inbound message.
type Result struct {
	Outcome   Outcome `json:"outcome"`
	MessageID string  `json:"message_id,omitempty"`
	CaseID    int64   `json:"case_id,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	Err       error   `json:"-"`
}

// Source yields inbound messages.
type Source interface {
	Fetch(ctx context.Context, handle mailbox.Handler) error
}

// CaseStore is the persistence the gateway writes to.
type CaseStore interface {
	CreateCase(ctx context.Context, c *models.Case) (int64, error)
	FindByExternalID(ctx context.Context, externalID string) (int64, bool, error)
	GetCase(ctx context.Context, id int64) (*models.Case, error)
	AddAttachment(ctx context.Context, a *models.Attachment) (int64, error)
	ListAttachments(ctx context.Context, caseID int64) ([]models.Attachment, error)
	SetAttachmentText(ctx context.Context, id int64, text string) error
	MarkPending(ctx context.Context, id int64) error
	ListPendingIDs(ctx context.Context, before time.Time, limit int) ([]int64, error)
	AddMessage(ctx context.Context, m *models.Message) (int64, error)
}

// Deduper is the fast-path message id filter.
type Deduper interface {
	IsNew(ctx context.Context, messageID string) (bool, error)
	Release(ctx context.Context, messageID string) error
}

// FileStore persists attachment bytes.
type FileStore interface {
	Put(caseID int64, filename string, data []byte) (string, error)
}

// TextExtractor pulls text out of attachment bytes.
type TextExtractor interface {
	Extract(filename, mediaType string, data []byte) (bool, string)
}

// Enqueuer schedules background classification.
type Enqueuer interface {
	Enqueue(caseID int64) error
}

// Limits bound attachment intake.
type Limits struct {
	MaxAttachments     int
	MaxAttachmentBytes int64
	TextBudget         int
}

// Deps are the gateway collaborators. Source and Dedup may be nil.
type Deps struct {
	Source    Source
	Store     CaseStore
	Dedup     Deduper
	Files     FileStore
	Extractor TextExtractor
	Queue     Enqueuer
	Filter    *Filter
}

// Gateway is the ingestion entry point.
type Gateway struct {
	Deps
	limits Limits
	pollMu sync.Mutex
	now    func() time.Time
}

// New creates a Gateway.
func New(deps Deps, limits Limits) *Gateway {
	if limits.MaxAttachments <= 0 {
		limits.MaxAttachments = 10
	}
	if limits.MaxAttachmentBytes <= 0 {
		limits.MaxAttachmentBytes = 20 << 20
	}
	if limits.TextBudget <= 0 {
		limits.TextBudget = extract.DefaultBudget
	}
	return &Gateway{Deps: deps, limits: limits, now: time.Now}
}

// PollAndIngest runs one mailbox poll cycle. Only one cycle runs at a time;
// a concurrent call returns ErrPollInProgress. Messages whose ingestion
// failed stay unseen in the mailbox and are retried by the next cycle.
func (g *Gateway) PollAndIngest(ctx context.Context) ([]Result, error) {
	if g.Source == nil {
		return nil, ErrNoSource
	}
	if !g.pollMu.TryLock() {
		return nil, ErrPollInProgress
	}
	defer g.pollMu.Unlock()

	start := time.Now()
	defer func() { metrics.PollDuration.Observe(time.Since(start).Seconds()) }()

	var results []Result
	err := g.Source.Fetch(ctx, func(ctx context.Context, msg *models.InboundMessage) error {
		r := g.IngestMessage(ctx, msg)
		results = append(results, r)
		if r.Outcome == OutcomeFailed {
			return r.Err
		}
		return nil
	})

	created := 0
	for _, r := range results {
		if r.Outcome == OutcomeCreated {
			created++
		}
	}
	slog.Info("mailbox poll finished",
		"messages", len(results),
		"created", created,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if err != nil {
		return results, fmt.Errorf("poll mailbox: %w", err)
	}
	return results, nil
}

// IngestMessage turns one inbound message into a case. It never panics on
// bad input and reports every outcome through Result.
func (g *Gateway) IngestMessage(ctx context.Context, msg *models.InboundMessage) Result {
	r := g.ingest(ctx, msg)
	metrics.IngestResults.WithLabelValues(string(r.Outcome)).Inc()
	switch r.Outcome {
	case OutcomeCreated:
		slog.Info("case created from message", "case_id", r.CaseID, "message_id", r.MessageID, "attachments", len(msg.Attachments))
	case OutcomeSkipped:
		slog.Info("message skipped", "message_id", r.MessageID, "reason", r.Reason)
	case OutcomeFailed:
		slog.Error("message ingestion failed", "message_id", r.MessageID, "error", r.Err)
	}
	return r
}

func (g *Gateway) ingest(ctx context.Context, msg *models.InboundMessage) Result {
	if msg == nil {
		return Result{Outcome: OutcomeFailed, Err: apperr.Validation("empty message")}
	}
	messageID := strings.TrimSpace(msg.MessageID)
	res := Result{MessageID: messageID}

	if blocked, rule := g.Filter.Blocked(msg.From.Address, msg.Subject); blocked {
		res.Outcome, res.Reason = OutcomeSkipped, ReasonFiltered
		slog.Debug("message matched noise filter", "message_id", messageID, "rule", rule)
		return res
	}
	if strings.TrimSpace(msg.From.Address) == "" {
		res.Outcome, res.Reason = OutcomeSkipped, ReasonNoSender
		return res
	}

	claimed := false
	if messageID != "" {
		dup, isClaimed, err := g.checkDuplicate(ctx, messageID)
		if err != nil {
			res.Outcome, res.Err = OutcomeFailed, err
			return res
		}
		if dup {
			res.Outcome, res.Reason = OutcomeSkipped, ReasonDuplicate
			return res
		}
		claimed = isClaimed
	}

	c := &models.Case{
		Source:      models.SourceEmail,
		SenderEmail: strings.ToLower(strings.TrimSpace(msg.From.Address)),
		SenderName:  strings.TrimSpace(msg.From.Name),
		Subject:     strings.TrimSpace(msg.Subject),
		Body:        msg.Body,
		Priority:    models.PriorityMedium,
	}
	if messageID != "" {
		c.ExternalID = &messageID
	}
	received := msg.ReceivedAt
	if received.IsZero() {
		received = g.now()
	}
	received = received.UTC()
	c.ReceivedAt = &received

	id, err := g.Store.CreateCase(ctx, c)
	if apperr.Is(err, apperr.CodeConflict) {
		res.Outcome, res.Reason = OutcomeSkipped, ReasonDuplicate
		return res
	}
	if err != nil {
		if claimed {
			g.release(ctx, messageID)
		}
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("create case: %w", err)
		return res
	}
	res.Outcome, res.CaseID = OutcomeCreated, id

	if _, err := g.Store.AddMessage(ctx, &models.Message{
		CaseID:      id,
		Direction:   models.DirectionInbound,
		Channel:     models.ChannelEmail,
		Subject:     c.Subject,
		SenderEmail: c.SenderEmail,
		Body:        c.Body,
	}); err != nil {
		slog.Error("failed to record inbound message", "case_id", id, "error", err)
	}

	results := g.storeAttachments(ctx, id, msg.Attachments)
	if text := extract.Combine(results, g.limits.TextBudget); text != "" {
		if err := g.Store.SetAttachmentText(ctx, id, text); err != nil {
			slog.Error("failed to save attachment text", "case_id", id, "error", err)
		}
	}
	g.enqueue(id)
	return res
}

// checkDuplicate consults the dedup fast path, then the store. A Redis
// failure falls through to the store, whose unique external id is
// authoritative.
func (g *Gateway) checkDuplicate(ctx context.Context, messageID string) (dup, claimed bool, err error) {
	if g.Dedup != nil {
		isNew, err := g.Dedup.IsNew(ctx, messageID)
		switch {
		case err != nil:
			slog.Warn("dedup unavailable, using store lookup", "message_id", messageID, "error", err)
		case isNew:
			return false, true, nil
		}
	}
	_, found, err := g.Store.FindByExternalID(ctx, messageID)
	if err != nil {
		return false, false, fmt.Errorf("dedup lookup: %w", err)
	}
	return found, false, nil
}

func (g *Gateway) release(ctx context.Context, messageID string) {
	if err := g.Dedup.Release(context.WithoutCancel(ctx), messageID); err != nil {
		slog.Warn("failed to release dedup claim", "message_id", messageID, "error", err)
	}
}

// storeAttachments persists up to the configured number of attachments and
// extracts their text. Failures are logged per file and do not fail the case.
func (g *Gateway) storeAttachments(ctx context.Context, caseID int64, files []models.RawAttachment) []extract.Result {
	var results []extract.Result
	for i, f := range files {
		if i >= g.limits.MaxAttachments {
			slog.Warn("attachment limit reached, remainder dropped", "case_id", caseID, "dropped", len(files)-i)
			break
		}
		if f.Size() > g.limits.MaxAttachmentBytes {
			slog.Warn("attachment too large, dropped", "case_id", caseID, "filename", f.Filename, "size", f.Size())
			continue
		}
		if r, ok := g.storeOne(ctx, caseID, f); ok {
			results = append(results, r)
		}
	}
	return results
}

func (g *Gateway) storeOne(ctx context.Context, caseID int64, f models.RawAttachment) (extract.Result, bool) {
	locator, err := g.Files.Put(caseID, f.Filename, f.Data)
	if err != nil {
		slog.Error("failed to store attachment", "case_id", caseID, "filename", f.Filename, "error", err)
		return extract.Result{}, false
	}
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := g.Store.AddAttachment(ctx, &models.Attachment{
		CaseID:      caseID,
		Filename:    f.Filename,
		ContentType: contentType,
		SizeBytes:   f.Size(),
		StoragePath: locator,
	}); err != nil {
		slog.Error("failed to record attachment", "case_id", caseID, "filename", f.Filename, "error", err)
		return extract.Result{}, false
	}

	ok, text := g.Extractor.Extract(f.Filename, contentType, f.Data)
	return extract.Result{Filename: f.Filename, OK: ok, Text: text}, true
}

func (g *Gateway) enqueue(caseID int64) {
	if g.Queue == nil {
		return
	}
	if err := g.Queue.Enqueue(caseID); err != nil {
		// the case stays pending and is picked up by the next RequeuePending
		slog.Error("failed to enqueue classification", "case_id", caseID, "error", err)
	}
}

// AddAttachments stores new files on an existing case, appends their text
// to the case's attachment text and re-runs classification.
func (g *Gateway) AddAttachments(ctx context.Context, caseID int64, files []models.RawAttachment) error {
	if len(files) == 0 {
		return apperr.Validation("no files provided")
	}
	c, err := g.Store.GetCase(ctx, caseID)
	if err != nil {
		return err
	}
	existing, err := g.Store.ListAttachments(ctx, caseID)
	if err != nil {
		return fmt.Errorf("list attachments: %w", err)
	}
	if len(existing)+len(files) > g.limits.MaxAttachments {
		return apperr.Validation("a case holds at most %d attachments, %d already stored", g.limits.MaxAttachments, len(existing))
	}
	for _, f := range files {
		if f.Size() == 0 {
			return apperr.Validation("file %q is empty", f.Filename)
		}
		if f.Size() > g.limits.MaxAttachmentBytes {
			return apperr.Validation("file %q exceeds %d bytes", f.Filename, g.limits.MaxAttachmentBytes)
		}
	}

	var results []extract.Result
	for _, f := range files {
		r, ok := g.storeOne(ctx, caseID, f)
		if !ok {
			return apperr.Validation("file %q could not be stored", f.Filename)
		}
		results = append(results, r)
	}

	text := extract.Combine(results, g.limits.TextBudget)
	if prev := strings.TrimSpace(c.AttachmentText); prev != "" && text != "" {
		text = extract.Truncate(prev+"\n\n"+text, g.limits.TextBudget)
	} else if text == "" {
		text = c.AttachmentText
	}
	if text != c.AttachmentText {
		if err := g.Store.SetAttachmentText(ctx, caseID, text); err != nil {
			return fmt.Errorf("save attachment text: %w", err)
		}
	}

	if err := g.Store.MarkPending(ctx, caseID); err != nil {
		return err
	}
	g.enqueue(caseID)
	slog.Info("attachments added", "case_id", caseID, "files", len(files))
	return nil
}

// Reanalyze starts a new classification cycle for an existing case and
// queues it. A run still working on the previous cycle can no longer
// write its result.
func (g *Gateway) Reanalyze(ctx context.Context, caseID int64) error {
	if err := g.Store.MarkPending(ctx, caseID); err != nil {
		return err
	}
	g.enqueue(caseID)
	slog.Info("re-analysis requested", "case_id", caseID)
	return nil
}

// RequeuePending enqueues cases left pending for at least minAge, for
// example by a restart between case creation and classification or by a
// full task queue.
func (g *Gateway) RequeuePending(ctx context.Context, minAge time.Duration, limit int) (int, error) {
	ids, err := g.Store.ListPendingIDs(ctx, g.now().Add(-minAge), limit)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		g.enqueue(id)
	}
	if len(ids) > 0 {
		slog.Info("pending cases requeued", "count", len(ids))
	}
	return len(ids), nil
}
