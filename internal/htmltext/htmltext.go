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

// Package htmltext converts HTML mail bodies to plain text.
package htmltext

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policy = bluemonday.StrictPolicy()

	blockBreak = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|li|tr|h[1-6]|blockquote)\s*>`)
	spaceRun   = regexp.MustCompile(`[ \t\x{00a0}]+`)
	blankRun   = regexp.MustCompile(`\n{3,}`)
)

// ToText strips scripts, styles and tags, decodes entities and keeps
// paragraph and line breaks.
func ToText(s string) string {
	s = blockBreak.ReplaceAllString(s, "$0\n")
	s = policy.Sanitize(s)
	s = html.UnescapeString(s)

	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// LooksLikeHTML reports whether s appears to contain markup.
func LooksLikeHTML(s string) bool {
	l := strings.ToLower(s)
	for _, tag := range []string{"<html", "<body", "<div", "<p>", "<p ", "<br", "<table", "<span"} {
		if strings.Contains(l, tag) {
			return true
		}
	}
	return false
}
