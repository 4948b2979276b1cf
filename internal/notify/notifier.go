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

// Package notify sends one-shot escalation alerts for cases that need an
// operator. Delivery is best effort and never affects the case itself.
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/bcem/supportdesk/internal/metrics"
	"github.com/bcem/supportdesk/internal/models"
)

const (
	subjectLimit = 200
	summaryLimit = 300
	excerptLimit = 300
)

// Channel delivers a formatted alert.
type Channel interface {
	Post(ctx context.Context, text string) error
}

// Marker records that a case was alerted. It reports whether this call
// set the mark.
type Marker interface {
	MarkNotified(ctx context.Context, id int64, at time.Time) (bool, error)
}

// Notifier decides whether a case is alerted and records delivery.
type Notifier struct {
	channel Channel
	marker  Marker
	now     func() time.Time
}

// New creates a Notifier. A nil channel disables alerts.
func New(channel Channel, marker Marker) *Notifier {
	return &Notifier{channel: channel, marker: marker, now: time.Now}
}

// Enabled reports whether a channel is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.channel != nil
}

// MaybeNotify alerts about c when it is negative or needs an operator and
// has not been alerted yet. It returns true only when a message was
// delivered. Failures are logged and swallowed.
func (n *Notifier) MaybeNotify(ctx context.Context, c *models.Case) bool {
	if c == nil || c.NotifiedAt != nil || !c.NeedsEscalation() {
		return false
	}
	if !n.Enabled() {
		slog.Debug("escalation channel not configured, skipping alert", "case_id", c.ID)
		return false
	}

	if err := n.channel.Post(ctx, FormatAlert(c)); err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		slog.Warn("escalation alert failed", "case_id", c.ID, "error", err)
		return false
	}
	metrics.Notifications.WithLabelValues("sent").Inc()

	at := n.now()
	set, err := n.marker.MarkNotified(ctx, c.ID, at)
	if err != nil {
		// A later attempt may send a duplicate alert.
		slog.Error("failed to record alert delivery", "case_id", c.ID, "error", err)
	} else if set {
		c.NotifiedAt = &at
	}
	slog.Info("escalation alert sent", "case_id", c.ID, "operator_required", c.OperatorRequired)
	return true
}

// FormatAlert renders the HTML alert text. All case values are escaped.
func FormatAlert(c *models.Case) string {
	sentiment := "—"
	if c.Sentiment != nil {
		sentiment = tonalityLabel(*c.Sentiment)
	}
	category := "—"
	if c.RequestCategory != nil && *c.RequestCategory != "" {
		category = *c.RequestCategory
	}

	sender := c.SenderEmail
	if c.SenderName != "" {
		sender = fmt.Sprintf("%s <%s>", c.SenderName, c.SenderEmail)
	}

	lines := []string{
		"🚨 <b>Требуется внимание оператора</b>",
		"",
		fmt.Sprintf("<b>Обращение:</b> #%d", c.ID),
		"<b>Отправитель:</b> " + orDash(sender),
		"<b>Тема:</b> " + orDash(clip(c.Subject, subjectLimit)),
		"<b>Тональность:</b> " + html.EscapeString(sentiment),
		"<b>Категория:</b> " + html.EscapeString(category),
		"<b>Кратко:</b> " + orDash(clip(c.IssueSummary, summaryLimit)),
	}
	if c.OperatorRequired && c.OperatorReason != "" {
		lines = append(lines, "<b>Причина:</b> "+orDash(clip(c.OperatorReason, summaryLimit)))
	}
	lines = append(lines, "", "<i>"+orDash(clip(excerpt(c.Body), excerptLimit))+"</i>")
	return strings.Join(lines, "\n")
}

func tonalityLabel(s models.Sentiment) string {
	switch s {
	case models.SentimentNegative:
		return "Негативная"
	case models.SentimentPositive:
		return "Позитивная"
	default:
		return "Нейтральная"
	}
}

func orDash(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "—"
	}
	return html.EscapeString(s)
}

func clip(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "…"
}

func excerpt(body string) string {
	return strings.Join(strings.Fields(body), " ")
}
