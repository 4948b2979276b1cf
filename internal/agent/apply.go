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

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bcem/supportdesk/internal/apperr"
	"github.com/bcem/supportdesk/internal/devicemodel"
	"github.com/bcem/supportdesk/internal/metrics"
	"github.com/bcem/supportdesk/internal/models"
)

// CaseStore is the persistence the agent needs.
type CaseStore interface {
	GetCase(ctx context.Context, id int64) (*models.Case, error)
	ListAttachments(ctx context.Context, caseID int64) ([]models.Attachment, error)
	ApplyClassification(ctx context.Context, id, cycle int64, cls models.Classification) error
	MarkClassificationFailed(ctx context.Context, id, cycle int64, msg string) error
	RecordAnalysis(ctx context.Context, a *models.Analysis) error
}

const (
	loadAttempts = 3
	// anyCycle marks a failure against whatever cycle is current.
	anyCycle = 0
)

// Notifier alerts operators about cases that need attention.
type Notifier interface {
	MaybeNotify(ctx context.Context, c *models.Case) bool
}

// Apply classifies a pending case, persists the result and notifies when
// the case needs escalation. The result is written only against the cycle
// that was loaded; a case re-armed meanwhile is left for the job queued by
// the re-arm. A case is never left pending: any failure marks it failed.
func (a *Agent) Apply(ctx context.Context, caseID int64) (err error) {
	c, err := a.loadCase(ctx, caseID)
	if err != nil {
		if !apperr.Is(err, apperr.CodeNotFound) {
			a.markFailed(ctx, caseID, anyCycle, err)
		}
		return fmt.Errorf("load case %d: %w", caseID, err)
	}
	if c.ClassificationStatus != models.ClassificationPending {
		slog.Debug("case not pending, skipping classification", "case_id", caseID, "status", c.ClassificationStatus)
		return nil
	}
	cycle := c.ClassificationCycle

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic classifying case %d: %v", caseID, r)
		}
		if err != nil {
			a.markFailed(ctx, caseID, cycle, err)
		}
	}()

	atts, attErr := a.store.ListAttachments(ctx, caseID)
	if attErr != nil {
		slog.Warn("failed to list attachments", "case_id", caseID, "error", attErr)
	}

	started := time.Now()
	cls := a.Classify(ctx, Input{
		CaseID:             caseID,
		Subject:            c.Subject,
		Body:               c.Body,
		SenderEmail:        c.SenderEmail,
		AttachmentsSummary: describeAttachments(atts),
		AttachmentsText:    c.AttachmentText,
	})
	latency := time.Since(started)

	// Pattern matches are preferred over the model's guess.
	if model := devicemodel.Extract(c.Subject + "\n" + c.Body + "\n" + c.AttachmentText); model != "" {
		cls.DeviceType = model
	}

	if err := a.store.ApplyClassification(ctx, caseID, cycle, cls); err != nil {
		if apperr.Is(err, apperr.CodeConflict) {
			slog.Info("case re-armed or resolved during classification, result discarded", "case_id", caseID, "cycle", cycle)
			return nil
		}
		return fmt.Errorf("apply classification: %w", err)
	}

	a.recordAnalysis(ctx, caseID, cycle, cls, latency)

	result := "done"
	if cls.Fallback {
		result = "fallback"
	}
	metrics.Classifications.WithLabelValues(result).Inc()
	slog.Info("case classified",
		"case_id", caseID,
		"category", cls.RequestCategory,
		"sentiment", cls.Sentiment,
		"operator_required", cls.OperatorRequired,
		"confidence", cls.Confidence,
		"fallback", cls.Fallback,
	)

	if a.notifier == nil {
		return nil
	}
	updated, getErr := a.store.GetCase(ctx, caseID)
	if getErr != nil {
		slog.Warn("failed to reload case for notification", "case_id", caseID, "error", getErr)
		return nil
	}
	a.notifier.MaybeNotify(ctx, updated)
	return nil
}

// loadCase reads the case, retrying transient store errors.
func (a *Agent) loadCase(ctx context.Context, caseID int64) (*models.Case, error) {
	var lastErr error
	for attempt := 1; attempt <= loadAttempts; attempt++ {
		c, err := a.store.GetCase(ctx, caseID)
		if err == nil || apperr.Is(err, apperr.CodeNotFound) {
			return c, err
		}
		lastErr = err
		if attempt == loadAttempts {
			break
		}
		slog.Warn("load case failed, retrying", "case_id", caseID, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-time.After(time.Duration(attempt) * a.retryDelay):
		}
	}
	return nil, lastErr
}

// recordAnalysis stores the audit record of an applied run. A failed write
// is logged; the classification itself already stands.
func (a *Agent) recordAnalysis(ctx context.Context, caseID, cycle int64, cls models.Classification, latency time.Duration) {
	rec := &models.Analysis{
		CaseID:            caseID,
		Cycle:             cycle,
		Provider:          models.ProviderOpenAI,
		ModelVersion:      a.modelVersion(),
		PredictedCategory: cls.RequestCategory,
		Confidence:        cls.Confidence,
		LatencyMs:         latency.Milliseconds(),
		Fallback:          cls.Fallback,
	}
	if cls.Fallback {
		rec.Provider, rec.ModelVersion = models.ProviderFallback, ""
	}
	if err := a.store.RecordAnalysis(ctx, rec); err != nil {
		slog.Warn("failed to record analysis", "case_id", caseID, "cycle", cycle, "error", err)
	}
}

func (a *Agent) modelVersion() string {
	if m, ok := a.model.(interface{ Model() string }); ok {
		return m.Model()
	}
	return ""
}

func (a *Agent) markFailed(ctx context.Context, caseID, cycle int64, cause error) {
	metrics.Classifications.WithLabelValues("failed").Inc()
	if err := a.store.MarkClassificationFailed(context.WithoutCancel(ctx), caseID, cycle, cause.Error()); err != nil {
		slog.Error("failed to mark classification failed", "case_id", caseID, "error", err)
	}
}
