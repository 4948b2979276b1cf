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

package api

import (
	"time"

	"github.com/bcem/supportdesk/internal/models"
)

type syncResult struct {
	Outcome   string `json:"outcome"`
	MessageID string `json:"message_id,omitempty"`
	CaseID    int64  `json:"case_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
}

type syncResponse struct {
	Created int          `json:"created"`
	Skipped int          `json:"skipped"`
	Failed  int          `json:"failed"`
	Error   string       `json:"error,omitempty"`
	Results []syncResult `json:"results"`
}

// caseView is the wire form of a case. The owner token and the raw
// attachment text are not exposed.
type caseView struct {
	ID                   int64      `json:"id"`
	ExternalID           *string    `json:"external_id"`
	Source               string     `json:"source"`
	SenderEmail          string     `json:"sender_email"`
	SenderName           string     `json:"sender_name"`
	Subject              string     `json:"subject"`
	Body                 string     `json:"body"`
	Sentiment            *string    `json:"sentiment"`
	RequestCategory      *string    `json:"request_category"`
	IssueSummary         string     `json:"issue_summary"`
	SenderFullName       string     `json:"sender_full_name"`
	ObjectName           string     `json:"object_name"`
	SenderPhone          string     `json:"sender_phone"`
	DeviceType           string     `json:"device_type"`
	SerialNumbers        []string   `json:"serial_numbers"`
	Priority             string     `json:"priority"`
	AIReply              string     `json:"ai_reply"`
	OperatorRequired     bool       `json:"operator_required"`
	OperatorReason       string     `json:"operator_reason"`
	NotifiedAt           *time.Time `json:"notified_at"`
	ClassificationStatus string     `json:"classification_status"`
	ClassificationError  string     `json:"classification_error,omitempty"`
	Status               string     `json:"status"`
	CompletedAt          *time.Time `json:"completed_at"`
	ReplySent            bool       `json:"reply_sent"`
	ReplySentAt          *time.Time `json:"reply_sent_at"`
	ReplyText            string     `json:"reply_text"`
	ReceivedAt           *time.Time `json:"received_at"`
	CreatedAt            time.Time  `json:"created_at"`
}

func newCaseView(c *models.Case) caseView {
	v := caseView{
		ID:                   c.ID,
		ExternalID:           c.ExternalID,
		Source:               string(c.Source),
		SenderEmail:          c.SenderEmail,
		SenderName:           c.SenderName,
		Subject:              c.Subject,
		Body:                 c.Body,
		RequestCategory:      c.RequestCategory,
		IssueSummary:         c.IssueSummary,
		SenderFullName:       c.SenderFullName,
		ObjectName:           c.ObjectName,
		SenderPhone:          c.SenderPhone,
		DeviceType:           c.DeviceType,
		SerialNumbers:        c.SerialNumbers,
		Priority:             string(c.Priority),
		AIReply:              c.AIReply,
		OperatorRequired:     c.OperatorRequired,
		OperatorReason:       c.OperatorReason,
		NotifiedAt:           c.NotifiedAt,
		ClassificationStatus: string(c.ClassificationStatus),
		ClassificationError:  c.ClassificationError,
		Status:               string(c.Status),
		CompletedAt:          c.CompletedAt,
		ReplySent:            c.ReplySent,
		ReplySentAt:          c.ReplySentAt,
		ReplyText:            c.ReplyText,
		ReceivedAt:           c.ReceivedAt,
		CreatedAt:            c.CreatedAt,
	}
	if c.Sentiment != nil {
		s := string(*c.Sentiment)
		v.Sentiment = &s
	}
	if v.SerialNumbers == nil {
		v.SerialNumbers = []string{}
	}
	return v
}

type messageView struct {
	ID             int64     `json:"id"`
	Direction      string    `json:"direction"`
	Channel        string    `json:"channel"`
	Subject        string    `json:"subject"`
	SenderEmail    string    `json:"sender_email,omitempty"`
	RecipientEmail string    `json:"recipient_email,omitempty"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

func newMessageView(m *models.Message) messageView {
	return messageView{
		ID:             m.ID,
		Direction:      string(m.Direction),
		Channel:        string(m.Channel),
		Subject:        m.Subject,
		SenderEmail:    m.SenderEmail,
		RecipientEmail: m.RecipientEmail,
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
	}
}

type analysisView struct {
	ID                int64     `json:"id"`
	Cycle             int64     `json:"cycle"`
	Provider          string    `json:"provider"`
	ModelVersion      string    `json:"model_version,omitempty"`
	PredictedCategory string    `json:"predicted_category"`
	Confidence        float64   `json:"confidence"`
	LatencyMs         int64     `json:"latency_ms"`
	Fallback          bool      `json:"fallback"`
	CreatedAt         time.Time `json:"created_at"`
}

func newAnalysisView(a *models.Analysis) analysisView {
	return analysisView{
		ID:                a.ID,
		Cycle:             a.Cycle,
		Provider:          a.Provider,
		ModelVersion:      a.ModelVersion,
		PredictedCategory: a.PredictedCategory,
		Confidence:        a.Confidence,
		LatencyMs:         a.LatencyMs,
		Fallback:          a.Fallback,
		CreatedAt:         a.CreatedAt,
	}
}
