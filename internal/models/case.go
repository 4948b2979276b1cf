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

package models

import (
	"strings"
	"time"
)

// Sentiment is the tonality of a case as judged by the classifier.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// NormalizeSentiment maps anything outside the known set to neutral.
func NormalizeSentiment(s string) Sentiment {
	switch v := Sentiment(strings.ToLower(strings.TrimSpace(s))); v {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return v
	default:
		return SentimentNeutral
	}
}

// Status is the lifecycle state of a case.
type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
)

// ClassificationStatus tracks the enrichment pipeline for a case.
// It moves pending -> done or pending -> failed and is only re-armed to
// pending when new attachments are added or a re-analysis is requested.
type ClassificationStatus string

const (
	ClassificationPending ClassificationStatus = "pending"
	ClassificationDone    ClassificationStatus = "done"
	ClassificationFailed  ClassificationStatus = "failed"
)

// Priority is derived from escalation and sentiment.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Source records how a case entered the system.
type Source string

const (
	SourceEmail  Source = "email"
	SourceManual Source = "manual"
)

// FallbackCategory is used whenever the classifier returns a label outside
// the whitelist.
const FallbackCategory = "other"

// Categories is the fixed request-category whitelist.
var Categories = []string{
	"malfunction",
	"calibration",
	"verification",
	"sensor_replacement",
	"repair",
	"warranty",
	"documentation_request",
	"consultation",
	"installation",
	"configuration",
	"software",
	"connectivity",
	"error_code",
	"spare_parts",
	"order",
	"pricing",
	"delivery",
	"return",
	"complaint",
	FallbackCategory,
}

var categorySet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Categories))
	for _, c := range Categories {
		m[c] = struct{}{}
	}
	return m
}()

// NormalizeCategory returns c if it is whitelisted (case and surrounding
// whitespace ignored) and FallbackCategory otherwise.
func NormalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if _, ok := categorySet[c]; ok {
		return c
	}
	return FallbackCategory
}

// Case is one support request.
type Case struct {
	ID         int64
	ExternalID *string
	Source     Source

	SenderEmail string
	SenderName  string
	Subject     string
	Body        string
	ClientToken string

	// AttachmentText is the concatenated text extracted from attachments.
	AttachmentText string

	Sentiment       *Sentiment
	RequestCategory *string
	IssueSummary    string
	SenderFullName  string
	ObjectName      string
	SenderPhone     string
	DeviceType      string
	SerialNumbers   []string
	Priority        Priority
	AIReply         string

	OperatorRequired bool
	OperatorReason   string
	NotifiedAt       *time.Time

	ClassificationStatus ClassificationStatus
	ClassificationError  string
	// ClassificationCycle increments on every re-arm. A result is only
	// written against the cycle it was computed for.
	ClassificationCycle int64

	Status      Status
	CompletedAt *time.Time
	ReplySent   bool
	ReplySentAt *time.Time
	ReplyText   string

	ReceivedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NeedsEscalation reports whether the case meets the alert trigger
// condition, ignoring whether an alert was already sent.
func (c *Case) NeedsEscalation() bool {
	if c.OperatorRequired {
		return true
	}
	return c.Sentiment != nil && *c.Sentiment == SentimentNegative
}

// Attachment is a stored file owned by exactly one case.
type Attachment struct {
	ID          int64
	CaseID      int64
	Filename    string
	ContentType string
	SizeBytes   int64
	StoragePath string
	CreatedAt   time.Time
}

// KnowledgeArticle is a read-only reference document.
type KnowledgeArticle struct {
	ID        int64
	Title     string
	Content   string
	Tags      string
	CreatedAt time.Time
}

// Classification is the validated result of the classification agent.
type Classification struct {
	Sentiment       Sentiment
	RequestCategory string
	IssueSummary    string
	SenderFullName  string
	ObjectName      string
	SenderPhone     string
	DeviceType      string
	SerialNumbers   []string
	Reply           string

	OperatorRequired bool
	OperatorReason   string

	Priority Priority

	// Confidence is kept on the analysis record only, never on the case.
	Confidence      float64
	ArticlesUsed    int
	SimilarCasesHit int
	Fallback        bool
}
