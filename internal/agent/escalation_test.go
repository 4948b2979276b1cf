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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchEscalation(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"urgency", "СРОЧНО нужна помощь", "срочн"},
		{"urgency stem", "Прошу срочного ответа", "срочн"},
		{"safety", "На объекте утечка газа", "утечк"},
		{"legal", "Будем вынуждены обратиться в суд", "суд"},
		{"payment", "С карты списали деньги дважды", "списали деньги"},
		{"human", "Соедините, пожалуйста, с оператором", "оператор"},
		{"english", "I want to speak to someone now", "speak to someone"},
		{"english whole word", "There is a fire in the room", "fire"},
		{"word prefix only", "Обновили firewall на сервере", ""},
		{"no match", "Спасибо, всё работает", ""},
		{"mid-word is ignored", "несрочный вопрос", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchEscalation(tt.text))
		})
	}
}

func TestNormalizeWords(t *testing.T) {
	assert.Equal(t, "срочно нужен специалист ", normalizeWords("Срочно!!! Нужен — специалист."))
}
