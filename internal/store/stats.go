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
	"math"
	"time"

	"github.com/bcem/supportdesk/internal/models"
)

// Timeline window bounds, in days.
const (
	DefaultTimelineDays = 30
	MinTimelineDays     = 7
	MaxTimelineDays     = 90

	deviceTypeTopN = 10
)

// Share dimensions. Every query returns key, count and the dimension total.
const (
	categoryShares = `
		SELECT COALESCE(request_category, 'uncategorized'), COUNT(*), SUM(COUNT(*)) OVER ()::bigint
		FROM cases GROUP BY 1 ORDER BY 2 DESC, 1`
	sentimentShares = `
		SELECT COALESCE(sentiment, 'unknown'), COUNT(*), SUM(COUNT(*)) OVER ()::bigint
		FROM cases GROUP BY 1 ORDER BY 2 DESC, 1`
	sourceShares = `
		SELECT source, COUNT(*), SUM(COUNT(*)) OVER ()::bigint
		FROM cases GROUP BY 1 ORDER BY 2 DESC, 1`
	deviceTypeShares = `
		SELECT device_type, COUNT(*), SUM(COUNT(*)) OVER ()::bigint
		FROM cases WHERE device_type <> '' GROUP BY 1 ORDER BY 2 DESC, 1 LIMIT $1`
	operatorReasonShares = `
		SELECT COALESCE(NULLIF(operator_reason, ''), 'unspecified'), COUNT(*), SUM(COUNT(*)) OVER ()::bigint
		FROM cases WHERE operator_required GROUP BY 1 ORDER BY 2 DESC, 1`
)

// Stats aggregates the case table as of now. Days sets the timeline
// window and is clamped to [MinTimelineDays, MaxTimelineDays]; zero
// selects DefaultTimelineDays. All day boundaries are UTC.
func (s *Store) Stats(ctx context.Context, now time.Time, days int) (*models.Stats, error) {
	switch {
	case days == 0:
		days = DefaultTimelineDays
	case days < MinTimelineDays:
		days = MinTimelineDays
	case days > MaxTimelineDays:
		days = MaxTimelineDays
	}
	today := startOfDay(now)

	out := &models.Stats{}
	summary, err := s.summary(ctx, today)
	if err != nil {
		return nil, err
	}
	out.Summary = *summary

	dims := []struct {
		name  string
		query string
		args  []any
		dst   *[]models.Share
	}{
		{"category", categoryShares, nil, &out.ByCategory},
		{"sentiment", sentimentShares, nil, &out.BySentiment},
		{"source", sourceShares, nil, &out.BySource},
		{"device type", deviceTypeShares, []any{deviceTypeTopN}, &out.ByDeviceType},
		{"operator reason", operatorReasonShares, nil, &out.OperatorReasons},
	}
	for _, d := range dims {
		shares, err := s.shares(ctx, d.query, d.args...)
		if err != nil {
			return nil, fmt.Errorf("stats by %s: %w", d.name, err)
		}
		*d.dst = shares
	}

	if out.Timeline, err = s.timeline(ctx, today, days); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) summary(ctx context.Context, today time.Time) (*models.Summary, error) {
	weekStart := today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))

	var (
		sum             models.Summary
		replied         int64
		replySecondsSum float64
	)
	err := s.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed' OR reply_sent),
			COUNT(*) FILTER (WHERE operator_required),
			COUNT(*) FILTER (WHERE reply_sent_at IS NOT NULL),
			COALESCE(SUM(EXTRACT(EPOCH FROM reply_sent_at - created_at)) FILTER (WHERE reply_sent_at IS NOT NULL), 0)::float8,
			COUNT(*) FILTER (WHERE created_at >= $1),
			COUNT(*) FILTER (WHERE created_at >= $2)
		FROM cases
	`, today, weekStart).Scan(&sum.Total, &sum.Completed, &sum.OperatorRequired, &replied, &replySecondsSum, &sum.Today, &sum.Week)
	if err != nil {
		return nil, fmt.Errorf("stats summary: %w", err)
	}
	sum.NotCompleted = sum.Total - sum.Completed
	if replied > 0 {
		hours := math.Round(replySecondsSum/float64(replied)/3600*100) / 100
		sum.AvgResponseHours = &hours
	}
	return &sum, nil
}

func (s *Store) shares(ctx context.Context, query string, args ...any) ([]models.Share, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Share{}
	for rows.Next() {
		var (
			sh    models.Share
			total int64
		)
		if err := rows.Scan(&sh.Key, &sh.Count, &total); err != nil {
			return nil, err
		}
		sh.Percentage = percentage(sh.Count, total)
		out = append(out, sh)
	}
	return out, rows.Err()
}

// timeline returns one entry per day for the days ending today, including
// days without cases.
func (s *Store) timeline(ctx context.Context, today time.Time, days int) ([]models.DayCount, error) {
	start := today.AddDate(0, 0, -(days - 1))
	rows, err := s.db.Query(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD'), COUNT(*)
		FROM cases
		WHERE created_at >= $1
		GROUP BY 1
	`, start)
	if err != nil {
		return nil, fmt.Errorf("stats timeline: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64, days)
	for rows.Next() {
		var (
			day string
			n   int64
		)
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		counts[day] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.DayCount, 0, days)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i).Format(time.DateOnly)
		out = append(out, models.DayCount{Date: day, Count: counts[day]})
	}
	return out, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func percentage(n, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
