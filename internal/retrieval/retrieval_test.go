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

package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/supportdesk/internal/models"
)

type fakeArticles struct {
	articles []models.KnowledgeArticle
	err      error
}

func (f *fakeArticles) ListArticles(_ context.Context) ([]models.KnowledgeArticle, error) {
	return f.articles, f.err
}

type fakeCases struct {
	cases     []models.Case
	err       error
	lastLimit int
}

func (f *fakeCases) ListHistoricalCases(_ context.Context, limit int) ([]models.Case, error) {
	f.lastLimit = limit
	return f.cases, f.err
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Ошибка E03 на ЭРИС-210, RS-485!")
	for _, want := range []string{"ошибка", "e03", "эрис-210", "rs-485"} {
		assert.Contains(t, tokens, want)
	}
	assert.NotContains(t, tokens, "на")
}

// TestRank verifies ordering, zero-score exclusion and topK.
func TestRank(t *testing.T) {
	docs := []Document{
		{ID: 1, Title: "Оплата счетов", Body: "Счёт выставляется по запросу."},
		{ID: 2, Title: "Калибровка ЭРИС-210", Body: "Для калибровки датчика подайте ПГС."},
		{ID: 3, Title: "Датчик", Body: "Общие сведения."},
	}

	results := Rank(docs, "Как провести калибровка датчик ЭРИС-210", 5)
	require.Len(t, results, 2)
	assert.Equal(t, int64(2), results[0].ID)
	assert.Equal(t, int64(3), results[1].ID)
	assert.Greater(t, results[0].Score, results[1].Score)

	assert.Len(t, Rank(docs, "калибровка датчик", 1), 1)
	assert.Empty(t, Rank(docs, "совсем другое", 5))
	assert.Empty(t, Rank(docs, "калибровка", 0))
	assert.Empty(t, Rank(nil, "калибровка", 3))
}

// TestRank_TiesKeepCorpusOrder verifies stability on equal scores.
func TestRank_TiesKeepCorpusOrder(t *testing.T) {
	docs := []Document{
		{ID: 7, Title: "ошибка"},
		{ID: 4, Title: "ошибка"},
		{ID: 9, Title: "ошибка"},
	}
	results := Rank(docs, "ошибка", 3)
	require.Len(t, results, 3)
	assert.Equal(t, []int64{7, 4, 9}, []int64{results[0].ID, results[1].ID, results[2].ID})
}

func TestSnippet(t *testing.T) {
	content := strings.Repeat("x ", 100) + "калибровка tail"
	got := Snippet(content, Tokenize("калибровка"), DefaultSnippetLength)
	assert.True(t, strings.HasPrefix(got, "..."))
	assert.True(t, strings.HasSuffix(got, "калибровка tail"))

	assert.Equal(t, "short", Snippet("short", Tokenize("zzzz"), DefaultSnippetLength))

	long := strings.Repeat("a", 300)
	assert.Equal(t, strings.Repeat("a", 200)+"...", Snippet(long, Tokenize("zzzz"), DefaultSnippetLength))
}

// TestKnowledgeBase_ContextForModel verifies the block format and the
// content cap.
func TestKnowledgeBase_ContextForModel(t *testing.T) {
	src := &fakeArticles{articles: []models.KnowledgeArticle{
		{ID: 1, Title: "Калибровка ЭРИС-210", Content: strings.Repeat("калибровка ", 200)},
		{ID: 2, Title: "Пустая", Content: "   "},
	}}
	kb := NewKnowledgeBase(src)

	block, err := kb.ContextForModel(context.Background(), "калибровка", 3)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(block, "### Статья 1: Калибровка ЭРИС-210\n"))
	assert.NotContains(t, block, "Пустая")

	body := strings.TrimPrefix(block, "### Статья 1: Калибровка ЭРИС-210\n")
	assert.Equal(t, articleContextLimit+3, len([]rune(body)))
	assert.True(t, strings.HasSuffix(body, "..."))
}

func TestKnowledgeBase_SourceError(t *testing.T) {
	kb := NewKnowledgeBase(&fakeArticles{err: errors.New("db down")})
	_, err := kb.Search(context.Background(), "калибровка", 3)
	assert.ErrorContains(t, err, "db down")
}

// TestCaseHistory verifies the current case is excluded and the sent reply
// is rendered.
func TestCaseHistory(t *testing.T) {
	category := "calibration"
	src := &fakeCases{cases: []models.Case{
		{ID: 10, Subject: "Калибровка ЭРИС-210", Body: "Как откалибровать?", ReplyText: "Используйте ПГС."},
		{ID: 11, Subject: "Калибровка ЭРИС-210", Body: "Повторный вопрос", RequestCategory: &category},
		{ID: 12, Subject: "Счёт", Body: "Нужен счёт", AIReply: "Отправили."},
	}}
	h := NewCaseHistory(src, 0)

	results, err := h.Search(context.Background(), "калибровка ЭРИС-210", 5, 11)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(10), results[0].ID)
	assert.Equal(t, 500, src.lastLimit)

	block := FormatCases(results)
	assert.True(t, strings.HasPrefix(block, "### Похожее обращение 1: Калибровка ЭРИС-210\n"))
	assert.Contains(t, block, "Обращение: Как откалибровать?")
	assert.Contains(t, block, "Ответ поддержки: Используйте ПГС.")
}

func TestFormat_Empty(t *testing.T) {
	assert.Empty(t, FormatArticles(nil))
	assert.Empty(t, FormatCases(nil))
}
