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

// Package kbseed loads knowledge articles from a YAML file and upserts
// them into the article corpus used for retrieval.
package kbseed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bcem/supportdesk/internal/models"
)

// Upserter persists one article, keyed on title.
type Upserter interface {
	UpsertArticle(ctx context.Context, a models.KnowledgeArticle) error
}

// Result summarises a seeding run.
type Result struct {
	Upserted int
	Skipped  int
	Errors   int
	Elapsed  time.Duration
}

type fileArticle struct {
	Title   string   `yaml:"title"`
	Content string   `yaml:"content"`
	Tags    []string `yaml:"tags"`
}

type file struct {
	Articles []fileArticle `yaml:"articles"`
}

// Parse reads the seed file format:
//
//	articles:
//	  - title: Датчик не включается
//	    content: ...
//	    tags: [датчик, питание]
func Parse(r io.Reader) ([]models.KnowledgeArticle, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	out := make([]models.KnowledgeArticle, 0, len(f.Articles))
	for _, a := range f.Articles {
		tags := make([]string, 0, len(a.Tags))
		for _, t := range a.Tags {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		out = append(out, models.KnowledgeArticle{
			Title:   strings.TrimSpace(a.Title),
			Content: strings.TrimSpace(a.Content),
			Tags:    strings.Join(tags, ", "),
		})
	}
	return out, nil
}

// Seed upserts every article with a title and content. A failed upsert is
// logged and counted; the run continues unless ctx is done.
func Seed(ctx context.Context, dst Upserter, articles []models.KnowledgeArticle) (*Result, error) {
	start := time.Now()
	res := &Result{}

	for _, a := range articles {
		if err := ctx.Err(); err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}
		if a.Title == "" || a.Content == "" {
			slog.Warn("skipping incomplete article", "title", a.Title)
			res.Skipped++
			continue
		}
		if err := dst.UpsertArticle(ctx, a); err != nil {
			slog.Error("article upsert failed", "title", a.Title, "error", err)
			res.Errors++
			continue
		}
		res.Upserted++
	}

	res.Elapsed = time.Since(start)
	return res, nil
}
