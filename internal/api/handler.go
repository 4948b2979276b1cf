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

// Package api exposes the operational HTTP surface: health, metrics, a
// manual mailbox sync trigger, case listing with threads and analysis
// history, dashboard analytics, reply dispatch, attachment upload and
// manual re-analysis.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bcem/supportdesk/internal/apperr"
	"github.com/bcem/supportdesk/internal/ingest"
	"github.com/bcem/supportdesk/internal/metrics"
	"github.com/bcem/supportdesk/internal/models"
	"github.com/bcem/supportdesk/internal/store"
)

const (
	syncTimeout  = 3 * time.Minute
	replyTimeout = 90 * time.Second
	maxReplyBody = 1 << 20
)

// Poller runs a mailbox poll cycle.
type Poller interface {
	PollAndIngest(ctx context.Context) ([]ingest.Result, error)
}

// Intake changes existing cases: new files or a fresh classification.
type Intake interface {
	AddAttachments(ctx context.Context, caseID int64, files []models.RawAttachment) error
	Reanalyze(ctx context.Context, caseID int64) error
}

// CaseReader reads cases and what hangs off them.
type CaseReader interface {
	ListCases(ctx context.Context, f store.ListFilter) ([]models.Case, error)
	ListMessages(ctx context.Context, caseID int64) ([]models.Message, error)
	ListAnalyses(ctx context.Context, caseID int64) ([]models.Analysis, error)
	Stats(ctx context.Context, now time.Time, days int) (*models.Stats, error)
}

// Replier sends a reply and completes the case.
type Replier interface {
	SendReply(ctx context.Context, caseID int64, text string) (time.Time, error)
}

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// Handler serves the HTTP API.
type Handler struct {
	poller   Poller
	intake   Intake
	cases    CaseReader
	replier  Replier
	checks   map[string]HealthCheck
	maxBytes int64
}

// NewHandler creates a Handler. maxUpload bounds one attachment request body.
func NewHandler(poller Poller, intake Intake, cases CaseReader, replier Replier, checks map[string]HealthCheck, maxUpload int64) *Handler {
	return &Handler{
		poller:   poller,
		intake:   intake,
		cases:    cases,
		replier:  replier,
		checks:   checks,
		maxBytes: maxUpload,
	}
}

// Routes returns the request multiplexer.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.ServeHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /api/mail/sync", h.ServeSync)
	mux.HandleFunc("GET /api/cases", h.ServeListCases)
	mux.HandleFunc("POST /api/cases/{id}/reply", h.ServeReply)
	mux.HandleFunc("POST /api/cases/{id}/attachments", h.ServeAttachments)
	mux.HandleFunc("POST /api/cases/{id}/analyze", h.ServeAnalyze)
	mux.HandleFunc("GET /api/cases/{id}/messages", h.ServeMessages)
	mux.HandleFunc("GET /api/cases/{id}/analyses", h.ServeAnalyses)
	mux.HandleFunc("GET /api/analytics", h.ServeAnalytics)
	return mux
}

// ServeHealth reports 200 when every dependency answers.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			slog.Warn("health check failed", "dependency", name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "dependency": name})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ServeSync runs one mailbox poll cycle synchronously.
func (h *Handler) ServeSync(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), syncTimeout)
	defer cancel()

	results, err := h.poller.PollAndIngest(ctx)
	switch {
	case errors.Is(err, ingest.ErrPollInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, ingest.ErrNoSource):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil && len(results) == 0:
		slog.Error("manual mailbox sync failed", "error", err)
		writeError(w, http.StatusBadGateway, "mailbox sync failed")
		return
	}

	out := syncResponse{Results: make([]syncResult, 0, len(results))}
	for _, res := range results {
		sr := syncResult{Outcome: string(res.Outcome), MessageID: res.MessageID, CaseID: res.CaseID, Reason: res.Reason}
		if res.Err != nil {
			sr.Error = res.Err.Error()
		}
		switch res.Outcome {
		case ingest.OutcomeCreated:
			out.Created++
		case ingest.OutcomeSkipped:
			out.Skipped++
		case ingest.OutcomeFailed:
			out.Failed++
		}
		out.Results = append(out.Results, sr)
	}
	if err != nil {
		out.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

// ServeListCases lists cases filtered by query parameters.
func (h *Handler) ServeListCases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ListFilter{
		Search:      q.Get("q"),
		Group:       store.StatusGroup(q.Get("group")),
		Category:    q.Get("category"),
		ClientToken: q.Get("token"),
		Sort:        store.SortMode(q.Get("sort")),
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		writeAppError(w, apperr.Validation("limit: %v", err))
		return
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		writeAppError(w, apperr.Validation("offset: %v", err))
		return
	}

	cases, err := h.cases.ListCases(r.Context(), f)
	if err != nil {
		writeAppError(w, err)
		return
	}
	views := make([]caseView, 0, len(cases))
	for i := range cases {
		views = append(views, newCaseView(&cases[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

type replyRequest struct {
	Text string `json:"text"`
}

// ServeReply sends the operator's reply and completes the case.
func (h *Handler) ServeReply(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	var req replyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxReplyBody)).Decode(&req); err != nil {
		writeAppError(w, apperr.Validation("invalid JSON body"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), replyTimeout)
	defer cancel()
	sentAt, err := h.replier.SendReply(ctx, id, req.Text)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": models.StatusCompleted, "reply_sent_at": sentAt})
}

// ServeAttachments adds uploaded files (multipart field "files") to a case.
func (h *Handler) ServeAttachments(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeAppError(w, apperr.Validation("invalid multipart upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	var files []models.RawAttachment
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			writeAppError(w, apperr.Validation("open %q: %v", fh.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeAppError(w, apperr.Validation("read %q: %v", fh.Filename, err))
			return
		}
		files = append(files, models.RawAttachment{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	if err := h.intake.AddAttachments(r.Context(), id, files); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "files": len(files), "classification_status": models.ClassificationPending})
}

// ServeAnalyze re-runs classification for a case in a new cycle.
func (h *Handler) ServeAnalyze(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.intake.Reanalyze(r.Context(), id); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "classification_status": models.ClassificationPending})
}

// ServeMessages returns a case's thread in arrival order.
func (h *Handler) ServeMessages(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	msgs, err := h.cases.ListMessages(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	views := make([]messageView, 0, len(msgs))
	for i := range msgs {
		views = append(views, newMessageView(&msgs[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

// ServeAnalyses returns a case's classification runs, newest first.
func (h *Handler) ServeAnalyses(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	recs, err := h.cases.ListAnalyses(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	views := make([]analysisView, 0, len(recs))
	for i := range recs {
		views = append(views, newAnalysisView(&recs[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

// ServeAnalytics returns the dashboard aggregates. The optional days
// parameter sets the timeline window.
func (h *Handler) ServeAnalytics(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r.URL.Query().Get("days"))
	if err != nil {
		writeAppError(w, apperr.Validation("days: %v", err))
		return
	}
	if days != 0 && (days < store.MinTimelineDays || days > store.MaxTimelineDays) {
		writeAppError(w, apperr.Validation("days must be between %d and %d", store.MinTimelineDays, store.MaxTimelineDays))
		return
	}
	stats, err := h.cases.Stats(r.Context(), time.Now(), days)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func caseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid case id %q", r.PathValue("id"))
	}
	return id, nil
}

func intParam(s string) (int, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func writeAppError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg, "code": string(apperr.CodeOf(err))})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}
