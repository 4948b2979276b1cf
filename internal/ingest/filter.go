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

package ingest

import "strings"

// Filter rejects automated senders and system notifications.
type Filter struct {
	senders  []string
	subjects []string
}

// NewFilter builds a Filter from lowercase-insensitive substrings.
func NewFilter(senders, subjects []string) *Filter {
	return &Filter{senders: lowerAll(senders), subjects: lowerAll(subjects)}
}

// Blocked reports whether a message should be dropped, and the fragment
// that matched.
func (f *Filter) Blocked(sender, subject string) (bool, string) {
	if f == nil {
		return false, ""
	}
	sender = strings.ToLower(sender)
	for _, s := range f.senders {
		if strings.Contains(sender, s) {
			return true, "sender:" + s
		}
	}
	subject = strings.ToLower(subject)
	for _, s := range f.subjects {
		if strings.Contains(subject, s) {
			return true, "subject:" + s
		}
	}
	return false, ""
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
