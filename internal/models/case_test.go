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

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNormalizeCategory verifies whitelist coercion.
func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"calibration", "calibration"},
		{"  Warranty ", "warranty"},
		{"foo_bar", FallbackCategory},
		{"", FallbackCategory},
		{"other", FallbackCategory},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCategory(tt.in))
		})
	}
}

// TestCategoriesContainFallback verifies the fallback label is itself whitelisted.
func TestCategoriesContainFallback(t *testing.T) {
	assert.Contains(t, Categories, FallbackCategory)
	assert.Len(t, Categories, 20)
}

// TestNormalizeSentiment verifies unknown tonality becomes neutral.
func TestNormalizeSentiment(t *testing.T) {
	assert.Equal(t, SentimentNegative, NormalizeSentiment("NEGATIVE"))
	assert.Equal(t, SentimentPositive, NormalizeSentiment(" positive"))
	assert.Equal(t, SentimentNeutral, NormalizeSentiment("angry"))
	assert.Equal(t, SentimentNeutral, NormalizeSentiment(""))
}

// TestNeedsEscalation verifies the trigger condition.
func TestNeedsEscalation(t *testing.T) {
	neg := SentimentNegative
	pos := SentimentPositive

	assert.True(t, (&Case{OperatorRequired: true}).NeedsEscalation())
	assert.True(t, (&Case{Sentiment: &neg}).NeedsEscalation())
	assert.False(t, (&Case{Sentiment: &pos}).NeedsEscalation())
	assert.False(t, (&Case{}).NeedsEscalation())
}
