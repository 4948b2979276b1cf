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

package devicemodel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestExtract verifies known models win over the generic pattern and that
// nothing is returned when no pattern matches.
func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"known with space", "Не работает прибор ЭРИС 210 на объекте", "ЭРИС-210"},
		{"known hyphen", "газоанализатор ДГС-ЭРИС показывает ошибку", "ДГС-ЭРИС"},
		{"known case insensitive", "модель eris-230", "eris-230"},
		{"known beats earlier generic", "Щит ABC-100 и датчик ГСМ-05", "ГСМ-05"},
		{"generic latin", "We use model XT-2000 on site", "XT-2000"},
		{"generic cyrillic", "Сигнализатор СГГ 20 не реагирует", "СГГ-20"},
		{"no match", "Добрый день, прошу прислать счёт", ""},
		{"empty", "   ", ""},
		{"embedded in word is ignored", "codeAB12x", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.text))
		})
	}
}

// TestExtract_ScanLimit verifies only the leading part of long text is scanned.
func TestExtract_ScanLimit(t *testing.T) {
	text := strings.Repeat("а ", scanLimit) + "ЭРИС-310"
	assert.Equal(t, "", Extract(text))
}

// TestNormalize verifies whitespace collapsing and the length cap.
func TestNormalize(t *testing.T) {
	assert.Equal(t, "ГС-СО", normalize(" ГС  СО "))
	assert.Len(t, []rune(normalize(strings.Repeat("Ж", 100))), maxLength)
}
