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

package agent

import (
	"strings"
	"unicode"
)

// escalationTerms are matched at word starts in lower-cased text. A trailing
// space requires the word to end there too.
var escalationTerms = []string{
	// urgency
	"срочн", "немедленно", "как можно скорее", "авари", "простой производства",
	"urgent", "asap", "emergency", "immediately",
	// safety
	"утечк", "загазованност", "пожар", "взрыв", "опасно", "угроз", "пострадал",
	"gas leak", "fire ", "explosion", "injur",
	// legal
	"суд ", "в суд", "судебн", "претензи", "юрист", "прокуратур", "ростехнадзор",
	"lawsuit", "legal action", "lawyer", "attorney",
	// payment and account lockout
	"списали деньги", "возврат денег", "вернуть деньги", "двойное списание",
	"заблокирован", "не могу войти",
	"refund", "chargeback", "charged twice", "account locked", "locked out",
	// explicit request for a person
	"оператор", "живой человек", "позовите специалиста", "соедините со специалистом",
	"свяжитесь со мной", "перезвоните",
	"human ", "real person", "speak to someone", "call me back",
}

// DefaultEscalationReason is recorded when the override fires and no reason
// was supplied.
const DefaultEscalationReason = "Обнаружены признаки срочности или запрос на связь со специалистом"

// matchEscalation returns the first escalation term found in text, or "".
func matchEscalation(text string) string {
	norm := " " + normalizeWords(text) + " "
	for _, term := range escalationTerms {
		if strings.Contains(norm, " "+term) {
			return strings.TrimSpace(term)
		}
	}
	return ""
}

// normalizeWords lower-cases text and replaces every run of non-letter,
// non-digit runes with a single space.
func normalizeWords(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return b.String()
}
