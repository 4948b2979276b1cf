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

// Package devicemodel finds device model identifiers in free text using
// fixed patterns only, so that no model name is ever invented.
package devicemodel

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxLength = 60
	scanLimit = 10000
)

// known product models, checked in order before the generic pattern.
var known = compileAll(
	`ЭРИС[- ]?210`,
	`ЭРИС[- ]?230`,
	`ЭРИС[- ]?310`,
	`ЭРИС[- ]?ФИД`,
	`ERIS[- ]?210`,
	`ERIS[- ]?230`,
	`ERIS[- ]?310`,
	`ГСМ[- ]?05`,
	`ГСМ[- ]?10`,
	`ГС[- ]?СО`,
	`ДГС[- ]?ЭРИС`,
)

// generic matches a letter, up to nine letters/digits/hyphens, an optional
// separator and two to four digits, delimited by non-word runes. RE2's \b is
// ASCII-only, so the delimiters are spelled out.
var generic = regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])([А-ЯA-Z][А-ЯA-Z0-9\-]{1,9}[- ]?[0-9]{2,4})(?:$|[^\p{L}\p{N}_])`)

var (
	whitespace = regexp.MustCompile(`\s+`)
	allDigits  = regexp.MustCompile(`^[0-9]+$`)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// Extract returns the first known model in text, else the first generic
// model-like token, else "".
func Extract(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if utf8.RuneCountInString(text) > scanLimit {
		text = string([]rune(text)[:scanLimit])
	}

	for _, re := range known {
		if m := re.FindString(text); m != "" {
			return normalize(m)
		}
	}

	for _, m := range generic.FindAllStringSubmatch(text, -1) {
		candidate := m[1]
		if utf8.RuneCountInString(candidate) < 4 || allDigits.MatchString(candidate) {
			continue
		}
		return normalize(candidate)
	}
	return ""
}

func normalize(s string) string {
	s = whitespace.ReplaceAllString(strings.TrimSpace(s), "-")
	if utf8.RuneCountInString(s) > maxLength {
		s = string([]rune(s)[:maxLength])
	}
	return s
}
