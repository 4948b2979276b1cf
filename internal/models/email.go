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

// Package models defines the data structures shared across the support desk.
package models

import "time"

// EmailAddress represents a sender or recipient with an address and optional name.
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// RawAttachment is an attachment as decoded from the inbound transport,
// before it is written to storage.
type RawAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// Size returns the attachment length in bytes.
func (a RawAttachment) Size() int64 { return int64(len(a.Data)) }

// InboundMessage is a normalized inbound email ready for ingestion.
//
// MessageID is the transport's Message-Id header and doubles as the dedup key.
// Body is always plain text: HTML-only messages are converted upstream.
type InboundMessage struct {
	MessageID   string          `json:"message_id"`
	From        EmailAddress    `json:"from"`
	Subject     string          `json:"subject"`
	Body        string          `json:"body"`
	ReceivedAt  time.Time       `json:"received_at"`
	Attachments []RawAttachment `json:"attachments"`

	// UID is the mailbox-local identifier, used for logging only.
	UID string `json:"-"`
}
