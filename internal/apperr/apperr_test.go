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

package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestHTTPStatus verifies the code to status mapping, including wrapped errors.
func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("reply text is empty"), http.StatusBadRequest},
		{"not found", NotFound("case", 7), http.StatusNotFound},
		{"conflict", Conflict("duplicate"), http.StatusConflict},
		{"external", External("smtp", errors.New("refused")), http.StatusServiceUnavailable},
		{"timeout", External("openai", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{"wrapped", fmt.Errorf("send: %w", Validation("bad")), http.StatusBadRequest},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

// TestExternal_DeadlineBecomesTimeout verifies deadline errors are classified
// as timeouts and still unwrap to the cause.
func TestExternal_DeadlineBecomesTimeout(t *testing.T) {
	err := External("telegram", fmt.Errorf("post: %w", context.DeadlineExceeded))

	assert.Equal(t, CodeTimeout, err.Code)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, Is(err, CodeTimeout))
	assert.False(t, Is(nil, CodeTimeout))
}
