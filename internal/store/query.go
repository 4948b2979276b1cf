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
	"strings"

	"github.com/bcem/supportdesk/internal/apperr"
	"github.com/bcem/supportdesk/internal/models"
)

// StatusGroup selects a derived view over case status.
type StatusGroup string

const (
	GroupAll StatusGroup = ""
	// GroupOpen is every case that is not yet completed, including legacy
	// intermediate statuses.
	GroupOpen StatusGroup = "open"
	// GroupAnswered is the archive view: completed-like statuses, or any
	// case that has a sent reply, regardless of status.
	GroupAnswered StatusGroup = "answered"
)

// SortMode orders list results.
type SortMode string

const (
	SortNewest   SortMode = "created_desc"
	SortOldest   SortMode = "created_asc"
	SortPriority SortMode = "priority"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

var (
	openStatuses      = []string{string(models.StatusOpen), "new", "in_progress", "not_completed"}
	completedStatuses = []string{string(models.StatusCompleted), "answered", "closed"}
)

// ListFilter narrows and orders a case listing.
type ListFilter struct {
	Search      string
	Group       StatusGroup
	Category    string
	ClientToken string
	Sort        SortMode
	Limit       int
	Offset      int
}

// Validate rejects unknown groups and sort modes.
func (f ListFilter) Validate() error {
	switch f.Group {
	case GroupAll, GroupOpen, GroupAnswered:
	default:
		return apperr.Validation("unknown status group %q", f.Group)
	}
	switch f.Sort {
	case "", SortNewest, SortOldest, SortPriority:
	default:
		return apperr.Validation("unknown sort mode %q", f.Sort)
	}
	if f.Limit < 0 || f.Offset < 0 {
		return apperr.Validation("limit and offset must be non-negative")
	}
	return nil
}

// ListCases returns cases matching the filter.
func (s *Store) ListCases(ctx context.Context, f ListFilter) ([]models.Case, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	sql, args := buildListQuery(f)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()
	return collectCases(rows)
}

// ListHistoricalCases returns the most recent cases that carry a summary or
// a reply, used as the corpus for similar-case retrieval.
func (s *Store) ListHistoricalCases(ctx context.Context, limit int) ([]models.Case, error) {
	rows, err := s.db.Query(ctx, `SELECT `+caseColumns+`
		FROM cases
		WHERE issue_summary <> '' OR reply_text <> '' OR ai_reply <> ''
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list historical cases: %w", err)
	}
	defer rows.Close()
	return collectCases(rows)
}

// buildListQuery assembles the SELECT for ListCases. It is pure so the
// filter semantics can be tested without a database.
func buildListQuery(f ListFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q := strings.TrimSpace(f.Search); q != "" {
		p := arg("%" + escapeLike(q) + "%")
		where = append(where, fmt.Sprintf("(subject ILIKE %s OR sender_email ILIKE %s OR body ILIKE %s)", p, p, p))
	}

	switch f.Group {
	case GroupOpen:
		where = append(where, fmt.Sprintf("status = ANY(%s)", arg(openStatuses)))
	case GroupAnswered:
		where = append(where, fmt.Sprintf("(status = ANY(%s) OR reply_sent OR reply_sent_at IS NOT NULL)", arg(completedStatuses)))
	}

	if c := strings.TrimSpace(f.Category); c != "" {
		where = append(where, fmt.Sprintf("request_category = %s", arg(c)))
	}
	if t := strings.TrimSpace(f.ClientToken); t != "" {
		where = append(where, fmt.Sprintf("client_token = %s", arg(t)))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.TrimSpace(caseColumns))
	b.WriteString(" FROM cases")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	switch f.Sort {
	case SortOldest:
		b.WriteString(" ORDER BY created_at ASC, id ASC")
	case SortPriority:
		b.WriteString(" ORDER BY CASE WHEN operator_required THEN 0 WHEN sentiment = 'negative' THEN 1 ELSE 2 END, created_at DESC, id DESC")
	default:
		b.WriteString(" ORDER BY created_at DESC, id DESC")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	b.WriteString(" LIMIT " + arg(limit))
	b.WriteString(" OFFSET " + arg(f.Offset))

	return b.String(), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
