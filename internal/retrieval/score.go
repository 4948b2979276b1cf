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

// Package retrieval ranks knowledge articles and past cases against a query
// with weighted keyword and token-overlap scoring. It is lexical only.
package retrieval

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Keyword is a domain term and its weight.
type Keyword struct {
	Term   string
	Weight float64
}

// Keywords is the weighted domain vocabulary, all lower case.
var Keywords = []Keyword{
	{"калибровка", 2.0},
	{"поверка", 2.0},
	{"ошибка", 1.5},
	{"неисправность", 1.5},
	{"датчик", 1.5},
	{"замена", 1.5},
	{"гарантия", 1.5},
	{"ремонт", 1.5},
	{"документ", 1.5},
	{"паспорт", 1.5},
	{"сертификат", 1.5},
	{"руководство", 1.5},
	{"эрис-210", 2.0},
	{"эрис-230", 2.0},
	{"эрис-310", 2.0},
	{"дгс-эрис", 2.0},
	{"газоанализатор", 1.5},
	{"газосигнализатор", 1.5},
	{"пгс", 1.5},
	{"4-20ма", 1.5},
	{"rs-485", 1.5},
	{"modbus", 1.5},
	{"сенсор", 1.5},
	{"чувствительный", 1.5},
	{"e01", 2.0},
	{"e02", 2.0},
	{"e03", 2.0},
	{"e04", 2.0},
	{"e05", 2.0},
}

const (
	titleKeywordFactor = 3.0
	bodyKeywordFactor  = 1.0
	tagsKeywordFactor  = 2.0
	titleTokenWeight   = 2.0
	bodyTokenWeight    = 0.5

	snippetLeftContext = 50
	// DefaultSnippetLength bounds snippets, not counting ellipses.
	DefaultSnippetLength = 200
)

var tokenRe = regexp.MustCompile(`[а-яёa-z0-9\-]+`)

// Tokenize returns the distinct lower-case tokens of at least three runes.
func Tokenize(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		if utf8.RuneCountInString(w) >= 3 {
			out[w] = struct{}{}
		}
	}
	return out
}

// Document is a searchable item.
type Document struct {
	ID    int64
	Title string
	Body  string
	Tags  string
	// Extra is carried through to results but never scored.
	Extra string
}

// Result is a scored document.
type Result struct {
	ID      int64
	Score   float64
	Snippet string
	Doc     Document
}

// query is a prepared search query.
type query struct {
	lower  string
	tokens map[string]struct{}
}

func newQuery(q string) query {
	return query{lower: strings.ToLower(q), tokens: Tokenize(q)}
}

// score computes the relevance of doc. Domain keywords count only when
// they occur in the query.
func (q query) score(doc Document) float64 {
	title := strings.ToLower(doc.Title)
	body := strings.ToLower(doc.Body)
	tags := strings.ToLower(doc.Tags)

	var s float64
	for _, kw := range Keywords {
		if !strings.Contains(q.lower, kw.Term) {
			continue
		}
		if strings.Contains(title, kw.Term) {
			s += kw.Weight * titleKeywordFactor
		}
		if strings.Contains(body, kw.Term) {
			s += kw.Weight * bodyKeywordFactor
		}
		if strings.Contains(tags, kw.Term) {
			s += kw.Weight * tagsKeywordFactor
		}
	}

	s += float64(overlap(q.tokens, Tokenize(title))) * titleTokenWeight
	s += float64(overlap(q.tokens, Tokenize(body))) * bodyTokenWeight
	return s
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return n
}

// Rank scores every document and returns the topK with a positive score,
// best first. Equal scores keep corpus order.
func Rank(docs []Document, q string, topK int) []Result {
	if topK <= 0 || len(docs) == 0 {
		return nil
	}
	pq := newQuery(q)

	var results []Result
	for _, d := range docs {
		s := pq.score(d)
		if s <= 0 {
			continue
		}
		results = append(results, Result{
			ID:      d.ID,
			Score:   s,
			Snippet: Snippet(d.Body, pq.tokens, DefaultSnippetLength),
			Doc:     d,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// Snippet returns up to maxLen runes of content starting 50 runes before
// the earliest occurrence of any token, with "..." marking cut edges. With
// no occurrence it returns the start of content.
func Snippet(content string, tokens map[string]struct{}, maxLen int) string {
	runes := []rune(content)
	lower := strings.ToLower(content)

	best := -1
	for t := range tokens {
		if i := strings.Index(lower, t); i >= 0 {
			pos := utf8.RuneCountInString(lower[:i])
			if best < 0 || pos < best {
				best = pos
			}
		}
	}

	if best < 0 {
		if len(runes) > maxLen {
			return string(runes[:maxLen]) + "..."
		}
		return content
	}

	// lower-casing can change rune counts for a few scripts
	best = min(best, len(runes))
	start := max(0, best-snippetLeftContext)
	end := min(len(runes), best+maxLen-snippetLeftContext)
	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet += "..."
	}
	return snippet
}

func capRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
