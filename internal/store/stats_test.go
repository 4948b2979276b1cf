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
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStats verifies the aggregates, percentages against each dimension
// total, and a gap-free timeline clamped to the minimum window.
func TestStats(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC) // Wednesday
	today := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	cols := []string{"key", "count", "total"}

	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER (WHERE status = 'completed' OR reply_sent)")).
		WithArgs(today, monday).
		WillReturnRows(mock.NewRows([]string{"total", "completed", "operator", "replied", "seconds", "today", "week"}).
			AddRow(int64(4), int64(1), int64(2), int64(2), float64(9000), int64(2), int64(3)))
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(request_category, 'uncategorized')")).
		WillReturnRows(mock.NewRows(cols).
			AddRow("malfunction", int64(3), int64(4)).
			AddRow("uncategorized", int64(1), int64(4)))
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(sentiment, 'unknown')")).
		WillReturnRows(mock.NewRows(cols))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT source, COUNT(*)")).
		WillReturnRows(mock.NewRows(cols).AddRow("email", int64(4), int64(4)))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE device_type <> ''")).
		WithArgs(10).
		WillReturnRows(mock.NewRows(cols).
			AddRow("ЭРИС-210", int64(2), int64(3)).
			AddRow("ЭРИС-414", int64(1), int64(3)))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE operator_required GROUP BY 1")).
		WillReturnRows(mock.NewRows(cols).AddRow("unspecified", int64(2), int64(2)))
	mock.ExpectQuery(regexp.QuoteMeta("to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')")).
		WithArgs(time.Date(2026, 2, 26, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(mock.NewRows([]string{"day", "count"}).
			AddRow("2026-03-01", int64(3)).
			AddRow("2026-03-04", int64(2)))

	st, err := s.Stats(context.Background(), now, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(4), st.Summary.Total)
	assert.Equal(t, int64(3), st.Summary.NotCompleted)
	assert.Equal(t, int64(2), st.Summary.OperatorRequired)
	require.NotNil(t, st.Summary.AvgResponseHours)
	assert.Equal(t, 1.25, *st.Summary.AvgResponseHours)
	assert.Equal(t, int64(3), st.Summary.Week)

	require.Len(t, st.ByCategory, 2)
	assert.Equal(t, 75.0, st.ByCategory[0].Percentage)
	assert.Equal(t, "uncategorized", st.ByCategory[1].Key)
	assert.NotNil(t, st.BySentiment)
	assert.Empty(t, st.BySentiment)
	assert.Equal(t, 100.0, st.BySource[0].Percentage)
	assert.Equal(t, 66.7, st.ByDeviceType[0].Percentage)
	assert.Equal(t, int64(2), st.OperatorReasons[0].Count)

	require.Len(t, st.Timeline, MinTimelineDays)
	assert.Equal(t, "2026-02-26", st.Timeline[0].Date)
	assert.Equal(t, int64(3), st.Timeline[3].Count)
	assert.Equal(t, "2026-03-04", st.Timeline[6].Date)
	assert.Equal(t, int64(2), st.Timeline[6].Count)
	assert.Zero(t, st.Timeline[5].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestStats_NoReplies verifies the average response time is absent, not
// zero, when no case was answered.
func TestStats_NoReplies(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"key", "count", "total"}

	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER")).
		WillReturnRows(mock.NewRows([]string{"total", "completed", "operator", "replied", "seconds", "today", "week"}).
			AddRow(int64(0), int64(0), int64(0), int64(0), float64(0), int64(0), int64(0)))
	for range 5 {
		mock.ExpectQuery("SELECT").WillReturnRows(mock.NewRows(cols))
	}
	mock.ExpectQuery(regexp.QuoteMeta("to_char")).WillReturnRows(mock.NewRows([]string{"day", "count"}))

	st, err := s.Stats(context.Background(), time.Now(), 0)
	require.NoError(t, err)
	assert.Nil(t, st.Summary.AvgResponseHours)
	assert.Len(t, st.Timeline, DefaultTimelineDays)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 33.3, percentage(1, 3))
	assert.Equal(t, 0.0, percentage(1, 0))
}
