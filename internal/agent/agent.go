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

// Package agent classifies support cases: it retrieves related history and
// knowledge, asks the model for a structured analysis, validates it and
// applies deterministic escalation rules on top.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bcem/supportdesk/internal/llm"
	"github.com/bcem/supportdesk/internal/models"
	"github.com/bcem/supportdesk/internal/retrieval"
)

const (
	historyTopK  = 2
	articlesTopK = 3

	// SimilarityThreshold is the history score above which a past case
	// counts as closely similar.
	SimilarityThreshold = 8.0

	confidenceSimilarCase = 0.95
	confidenceArticles    = 0.85
	confidenceBare        = 0.6
	confidenceFallback    = 0.3
)

var errEmptyReply = errors.New("model returned an empty reply")

// Model produces the structured analysis of a case.
type Model interface {
	Classify(ctx context.Context, system, user string) (*llm.ModelOutput, error)
}

// ArticleSearcher finds knowledge articles.
type ArticleSearcher interface {
	Search(ctx context.Context, q string, topK int) ([]retrieval.Result, error)
}

// HistorySearcher finds similar past cases.
type HistorySearcher interface {
	Search(ctx context.Context, q string, topK int, excludeID int64) ([]retrieval.Result, error)
}

// Input is the text of one case as seen by the agent.
type Input struct {
	CaseID             int64
	Subject            string
	Body               string
	SenderEmail        string
	AttachmentsSummary string
	AttachmentsText    string
}

// Agent classifies cases.
type Agent struct {
	model    Model
	articles ArticleSearcher
	history  HistorySearcher
	store    CaseStore
	notifier Notifier

	retryDelay time.Duration
}

// New creates an Agent. A nil model makes every classification a fallback.
func New(model Model, articles ArticleSearcher, history HistorySearcher, store CaseStore, notifier Notifier) *Agent {
	return &Agent{
		model:    model,
		articles: articles,
		history:  history,
		store:    store,
		notifier: notifier,

		retryDelay: 500 * time.Millisecond,
	}
}

// Classify analyzes one case. It never fails: when the model is missing,
// errors or returns unusable output the result is a fallback.
func (a *Agent) Classify(ctx context.Context, in Input) models.Classification {
	query := strings.TrimSpace(in.Subject + "\n" + in.Body)

	var historyResults, articleResults []retrieval.Result
	if a.history != nil {
		res, err := a.history.Search(ctx, query, historyTopK, in.CaseID)
		if err != nil {
			slog.Warn("case history search failed", "case_id", in.CaseID, "error", err)
		}
		historyResults = res
	}
	if a.articles != nil {
		res, err := a.articles.Search(ctx, query, articlesTopK)
		if err != nil {
			slog.Warn("knowledge search failed", "case_id", in.CaseID, "error", err)
		}
		articleResults = res
	}

	cls, err := a.ask(ctx, in, joinContext(retrieval.FormatCases(historyResults), retrieval.FormatArticles(articleResults)))
	if err != nil {
		slog.Warn("classification fell back",
			"case_id", in.CaseID,
			"error", err,
		)
		cls = fallback()
	} else {
		cls.Confidence = confidence(historyResults, articleResults)
	}
	cls.ArticlesUsed = len(articleResults)
	cls.SimilarCasesHit = len(historyResults)

	if term := matchEscalation(in.Subject + "\n" + in.Body); term != "" {
		cls.OperatorRequired = true
		if strings.TrimSpace(cls.OperatorReason) == "" {
			cls.OperatorReason = DefaultEscalationReason
		}
		slog.Info("escalation keyword matched", "case_id", in.CaseID, "term", term)
	}

	cls.Priority = priority(cls)
	return cls
}

func (a *Agent) ask(ctx context.Context, in Input, retrieved string) (models.Classification, error) {
	if a.model == nil {
		return models.Classification{}, llm.ErrNoAPIKey
	}
	out, err := a.model.Classify(ctx, systemPrompt, buildUserPrompt(in, retrieved))
	if err != nil {
		return models.Classification{}, err
	}
	return validate(out)
}

// validate coerces sentiment and category into their allowed sets and
// rejects output without a reply.
func validate(out *llm.ModelOutput) (models.Classification, error) {
	if out == nil || strings.TrimSpace(out.Reply) == "" {
		return models.Classification{}, errEmptyReply
	}
	return models.Classification{
		Sentiment:        models.NormalizeSentiment(out.Sentiment),
		RequestCategory:  models.NormalizeCategory(out.RequestCategory),
		IssueSummary:     strings.TrimSpace(out.IssueSummary),
		SenderFullName:   strings.TrimSpace(out.SenderFullName),
		ObjectName:       strings.TrimSpace(out.ObjectName),
		SenderPhone:      strings.TrimSpace(out.SenderPhone),
		DeviceType:       strings.TrimSpace(out.DeviceType),
		SerialNumbers:    cleanList(out.SerialNumbers),
		Reply:            strings.TrimSpace(out.Reply),
		OperatorRequired: out.OperatorRequired,
		OperatorReason:   strings.TrimSpace(out.OperatorReason),
	}, nil
}

func fallback() models.Classification {
	return models.Classification{
		Sentiment:       models.SentimentNeutral,
		RequestCategory: models.FallbackCategory,
		Reply:           FallbackReply,
		Confidence:      confidenceFallback,
		Fallback:        true,
	}
}

func confidence(history, articles []retrieval.Result) float64 {
	switch {
	case len(history) > 0 && history[0].Score >= SimilarityThreshold:
		return confidenceSimilarCase
	case len(articles) > 0:
		return confidenceArticles
	default:
		return confidenceBare
	}
}

func priority(cls models.Classification) models.Priority {
	if cls.OperatorRequired || cls.Sentiment == models.SentimentNegative {
		return models.PriorityHigh
	}
	return models.PriorityMedium
}

func cleanList(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func describeAttachments(atts []models.Attachment) string {
	lines := make([]string, 0, len(atts))
	for _, att := range atts {
		lines = append(lines, fmt.Sprintf("- %s (%s, %d КБ)", att.Filename, att.ContentType, (att.SizeBytes+1023)/1024))
	}
	return strings.Join(lines, "\n")
}
