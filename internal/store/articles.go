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

	"github.com/bcem/supportdesk/internal/models"
)

// ListArticles returns the whole knowledge corpus in id order.
func (s *Store) ListArticles(ctx context.Context) ([]models.KnowledgeArticle, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, title, content, tags, created_at FROM kb_articles ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var out []models.KnowledgeArticle
	for rows.Next() {
		var a models.KnowledgeArticle
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &a.Tags, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertArticle inserts or replaces an article keyed on title.
func (s *Store) UpsertArticle(ctx context.Context, a models.KnowledgeArticle) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO kb_articles (title, content, tags)
		VALUES ($1, $2, $3)
		ON CONFLICT (title) DO UPDATE SET
			content = EXCLUDED.content,
			tags    = EXCLUDED.tags
	`, a.Title, a.Content, a.Tags)
	return err
}
