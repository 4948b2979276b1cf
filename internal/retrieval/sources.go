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
	"fmt"
	"strings"

	"github.com/bcem/supportdesk/internal/models"
)

const articleContextLimit = 800

// ArticleSource supplies the knowledge corpus.
type ArticleSource interface {
	ListArticles(ctx context.Context) ([]models.KnowledgeArticle, error)
}

// CaseSource supplies past cases.
type CaseSource interface {
	ListHistoricalCases(ctx context.Context, limit int) ([]models.Case, error)
}

// KnowledgeBase searches knowledge articles.
type KnowledgeBase struct {
	src ArticleSource
}

// NewKnowledgeBase creates a knowledge-base search over src.
func NewKnowledgeBase(src ArticleSource) *KnowledgeBase {
	return &KnowledgeBase{src: src}
}

// Search returns the topK best matching articles.
func (k *KnowledgeBase) Search(ctx context.Context, q string, topK int) ([]Result, error) {
	articles, err := k.src.ListArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load articles: %w", err)
	}
	docs := make([]Document, 0, len(articles))
	for _, a := range articles {
		if strings.TrimSpace(a.Content) == "" {
			continue
		}
		docs = append(docs, Document{ID: a.ID, Title: a.Title, Body: a.Content, Tags: a.Tags})
	}
	return Rank(docs, q, topK), nil
}

// FormatArticles renders article results as a prompt context block.
func FormatArticles(results []Result) string {
	parts := make([]string, 0, len(results))
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("### Статья %d: %s\n%s", i+1, r.Doc.Title, capRunes(r.Doc.Body, articleContextLimit)))
	}
	return strings.Join(parts, "\n\n")
}

// ContextForModel searches and renders the result in one step.
func (k *KnowledgeBase) ContextForModel(ctx context.Context, q string, topK int) (string, error) {
	results, err := k.Search(ctx, q, topK)
	if err != nil {
		return "", err
	}
	return FormatArticles(results), nil
}

// CaseHistory searches previously handled cases.
type CaseHistory struct {
	src         CaseSource
	corpusLimit int
}

// NewCaseHistory creates a past-case search over the corpusLimit most
// recent cases of src.
func NewCaseHistory(src CaseSource, corpusLimit int) *CaseHistory {
	if corpusLimit <= 0 {
		corpusLimit = 500
	}
	return &CaseHistory{src: src, corpusLimit: corpusLimit}
}

// Search returns the topK most similar past cases, skipping excludeID.
func (h *CaseHistory) Search(ctx context.Context, q string, topK int, excludeID int64) ([]Result, error) {
	cases, err := h.src.ListHistoricalCases(ctx, h.corpusLimit)
	if err != nil {
		return nil, fmt.Errorf("load case history: %w", err)
	}
	docs := make([]Document, 0, len(cases))
	for _, c := range cases {
		if c.ID == excludeID {
			continue
		}
		docs = append(docs, caseDocument(c))
	}
	return Rank(docs, q, topK), nil
}

// ContextForModel searches and renders the result in one step.
func (h *CaseHistory) ContextForModel(ctx context.Context, q string, topK int, excludeID int64) (string, error) {
	results, err := h.Search(ctx, q, topK, excludeID)
	if err != nil {
		return "", err
	}
	return FormatCases(results), nil
}

// caseDocument indexes subject as title, summary plus body as body, and
// the category and device as tags. The sent reply rides along unscored.
func caseDocument(c models.Case) Document {
	body := c.Body
	if c.IssueSummary != "" {
		body = c.IssueSummary + "\n" + body
	}
	var tags []string
	if c.RequestCategory != nil {
		tags = append(tags, *c.RequestCategory)
	}
	if c.DeviceType != "" {
		tags = append(tags, c.DeviceType)
	}
	reply := c.ReplyText
	if reply == "" {
		reply = c.AIReply
	}
	return Document{ID: c.ID, Title: c.Subject, Body: body, Tags: strings.Join(tags, " "), Extra: reply}
}

// FormatCases renders past-case results as a prompt context block.
func FormatCases(results []Result) string {
	parts := make([]string, 0, len(results))
	for i, r := range results {
		block := fmt.Sprintf("### Похожее обращение %d: %s\nОбращение: %s", i+1, r.Doc.Title, capRunes(r.Doc.Body, articleContextLimit))
		if r.Doc.Extra != "" {
			block += "\nОтвет поддержки: " + capRunes(r.Doc.Extra, articleContextLimit)
		}
		parts = append(parts, block)
	}
	return strings.Join(parts, "\n\n")
}
