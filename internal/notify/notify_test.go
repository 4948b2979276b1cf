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

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/supportdesk/internal/models"
)

// memMarker mirrors the store's "set only if unset" behavior.
type memMarker struct {
	mu       sync.Mutex
	notified map[int64]time.Time
	err      error
}

func (m *memMarker) MarkNotified(_ context.Context, id int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.notified == nil {
		m.notified = map[int64]time.Time{}
	}
	if _, ok := m.notified[id]; ok {
		return false, nil
	}
	m.notified[id] = at
	return true, nil
}

type fakeChannel struct {
	posts []string
	err   error
}

func (f *fakeChannel) Post(_ context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.posts = append(f.posts, text)
	return nil
}

func negativeCase() *models.Case {
	s := models.SentimentNegative
	cat := "malfunction"
	return &models.Case{
		ID:              12,
		SenderEmail:     "client@example.com",
		SenderName:      "Иван",
		Subject:         "Не работает <прибор>",
		Body:            "Прибор\n\nне   включается",
		Sentiment:       &s,
		RequestCategory: &cat,
		IssueSummary:    "Прибор не включается",
	}
}

// TestMaybeNotify_Idempotent verifies two calls deliver at most one alert.
func TestMaybeNotify_Idempotent(t *testing.T) {
	ch := &fakeChannel{}
	marker := &memMarker{}
	n := New(ch, marker)

	c := negativeCase()
	assert.True(t, n.MaybeNotify(context.Background(), c))
	require.NotNil(t, c.NotifiedAt)
	assert.False(t, n.MaybeNotify(context.Background(), c))
	assert.Len(t, ch.posts, 1)
	assert.Contains(t, marker.notified, int64(12))
}

func TestMaybeNotify_TriggerCondition(t *testing.T) {
	neutral := models.SentimentNeutral
	tests := []struct {
		name string
		c    *models.Case
		want bool
	}{
		{"negative", negativeCase(), true},
		{"operator required", &models.Case{ID: 1, OperatorRequired: true, Sentiment: &neutral}, true},
		{"neutral", &models.Case{ID: 2, Sentiment: &neutral}, false},
		{"unclassified", &models.Case{ID: 3}, false},
		{"already notified", func() *models.Case { c := negativeCase(); now := time.Now(); c.NotifiedAt = &now; return c }(), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := New(&fakeChannel{}, &memMarker{})
			assert.Equal(t, tt.want, n.MaybeNotify(context.Background(), tt.c))
		})
	}
}

// TestMaybeNotify_FailureIsSwallowed verifies a failed send leaves the case
// unmarked so a later attempt can retry.
func TestMaybeNotify_FailureIsSwallowed(t *testing.T) {
	marker := &memMarker{}
	n := New(&fakeChannel{err: errors.New("network down")}, marker)

	c := negativeCase()
	assert.False(t, n.MaybeNotify(context.Background(), c))
	assert.Nil(t, c.NotifiedAt)
	assert.Empty(t, marker.notified)
}

func TestMaybeNotify_Disabled(t *testing.T) {
	n := New(nil, &memMarker{})
	assert.False(t, n.Enabled())
	assert.False(t, n.MaybeNotify(context.Background(), negativeCase()))
}

func TestMaybeNotify_MarkErrorStillReportsDelivery(t *testing.T) {
	ch := &fakeChannel{}
	n := New(ch, &memMarker{err: errors.New("db down")})
	assert.True(t, n.MaybeNotify(context.Background(), negativeCase()))
	assert.Len(t, ch.posts, 1)
}

func TestFormatAlert(t *testing.T) {
	text := FormatAlert(negativeCase())
	assert.Contains(t, text, "#12")
	assert.Contains(t, text, "Иван &lt;client@example.com&gt;")
	assert.Contains(t, text, "Не работает &lt;прибор&gt;")
	assert.Contains(t, text, "Негативная")
	assert.Contains(t, text, "malfunction")
	assert.Contains(t, text, "<i>Прибор не включается</i>")
}

func TestFormatAlert_ClipsSubject(t *testing.T) {
	c := negativeCase()
	c.Subject = strings.Repeat("я", 500)
	text := FormatAlert(c)
	assert.Contains(t, text, strings.Repeat("я", subjectLimit)+"…")
	assert.NotContains(t, text, strings.Repeat("я", subjectLimit+1))
}

func TestNewTelegram_Unconfigured(t *testing.T) {
	assert.Nil(t, NewTelegram("", "", "123", 0))
	assert.Nil(t, NewTelegram("", "token", " ", 0))
}

// TestTelegramPost verifies the request shape against a fake Bot API.
func TestTelegramPost(t *testing.T) {
	var got sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram(srv.URL+"/", "TOKEN", "-100500", time.Second)
	require.NoError(t, tg.Post(context.Background(), "<b>hi</b>"))
	assert.Equal(t, "-100500", got.ChatID)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.True(t, got.DisableWebPagePreview)
	assert.Equal(t, "<b>hi</b>", got.Text)
}

// TestTelegramPost_RetriesOnceOnRateLimit verifies exactly one retry after 429.
func TestTelegramPost_RetriesOnceOnRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram(srv.URL, "T", "1", time.Second)
	tg.backoff = 10 * time.Millisecond
	require.NoError(t, tg.Post(context.Background(), "x"))
	assert.Equal(t, int32(2), hits.Load())
}

func TestTelegramPost_GivesUpAfterSecondRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tg := NewTelegram(srv.URL, "T", "1", time.Second)
	tg.backoff = 10 * time.Millisecond
	assert.ErrorIs(t, tg.Post(context.Background(), "x"), ErrRateLimited)
	assert.Equal(t, int32(2), hits.Load())
}

func TestTelegramPost_OtherErrorsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	err := NewTelegram(srv.URL, "SECRET", "1", time.Second).Post(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
	assert.NotContains(t, err.Error(), "SECRET")
	assert.Equal(t, int32(1), hits.Load())
}
