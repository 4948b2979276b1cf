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

package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult(t *testing.T) {
	assert.Equal(t, "sent", Result(nil))
	assert.Equal(t, "failed", Result(errors.New("x")))
}

// TestHandler verifies collectors are exposed once touched.
func TestHandler(t *testing.T) {
	before := testutil.ToFloat64(CasesReaped)
	CasesReaped.Add(2)
	assert.Equal(t, before+2, testutil.ToFloat64(CasesReaped))

	IngestResults.WithLabelValues("created").Inc()
	ObserveModelCall(time.Now(), nil)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "supportdesk_reaper_cases_deleted_total")
	assert.Contains(t, string(body), `supportdesk_ingest_messages_total{outcome="created"}`)
	assert.Contains(t, string(body), "supportdesk_llm_request_duration_seconds")
}
