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

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultAPIURL is the root of the Telegram Bot API.
	DefaultAPIURL = "https://api.telegram.org"

	defaultTimeout = 10 * time.Second
	// RateLimitBackoff is the pause before the single retry after HTTP 429.
	RateLimitBackoff = 1800 * time.Millisecond
)

// ErrRateLimited is returned when the channel still answers 429 after the retry.
var ErrRateLimited = errors.New("telegram: rate limited")

// Telegram posts messages to one chat through the Bot API.
type Telegram struct {
	httpClient *http.Client
	apiURL     string
	token      string
	chatID     string
	backoff    time.Duration
}

// NewTelegram creates a Bot API channel. It returns nil when token or chat
// is empty, which callers treat as "channel disabled".
func NewTelegram(apiURL, token, chatID string, timeout time.Duration) *Telegram {
	token, chatID = strings.TrimSpace(token), strings.TrimSpace(chatID)
	if token == "" || chatID == "" {
		return nil
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Telegram{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     strings.TrimRight(apiURL, "/"),
		token:      token,
		chatID:     chatID,
		backoff:    RateLimitBackoff,
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Post sends an HTML-formatted message. A 429 is retried once after the
// backoff; every other failure is returned as is.
func (t *Telegram) Post(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                t.chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		status, respBody, err := t.send(ctx, body)
		if err != nil {
			return err
		}
		switch {
		case status == http.StatusOK:
			return nil
		case status == http.StatusTooManyRequests && attempt == 0:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(t.backoff):
			}
			continue
		case status == http.StatusTooManyRequests:
			return ErrRateLimited
		default:
			return fmt.Errorf("send message failed (HTTP %d): %s", status, truncate(respBody, 200))
		}
	}
	return ErrRateLimited
}

func (t *Telegram) send(ctx context.Context, body []byte) (int, string, error) {
	// The token is part of the path; keep it out of returned errors.
	u := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return 0, "", errors.New("build request failed")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return 0, "", fmt.Errorf("send message: %w", urlErr.Err)
		}
		return 0, "", errors.New("send message failed")
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, string(respBody), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
