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

package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"golang.org/x/net/html/charset"

	"github.com/bcem/supportdesk/internal/htmltext"
	"github.com/bcem/supportdesk/internal/models"
)

const (
	maxBodyBytes = 256 * 1024
	// DefaultMaxAttachmentBytes caps a single decoded attachment.
	DefaultMaxAttachmentBytes = 25 * 1024 * 1024
)

func init() {
	message.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		return charset.NewReaderLabel(label, input)
	}
}

// Decode parses a raw RFC 5322 message into an InboundMessage. The body
// prefers the first text/plain part and falls back to text/html converted
// to text. Attachments larger than maxAttachment bytes are dropped.
func Decode(raw []byte, maxAttachment int64) (*models.InboundMessage, error) {
	if maxAttachment <= 0 {
		maxAttachment = DefaultMaxAttachmentBytes
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	defer mr.Close()

	msg := &models.InboundMessage{}
	h := mr.Header

	if subject, err := h.Subject(); err == nil {
		msg.Subject = strings.TrimSpace(subject)
	} else {
		msg.Subject = strings.TrimSpace(h.Get("Subject"))
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = models.EmailAddress{
			Address: strings.ToLower(strings.TrimSpace(from[0].Address)),
			Name:    strings.TrimSpace(from[0].Name),
		}
	}
	if id, err := h.MessageID(); err == nil && id != "" {
		msg.MessageID = "<" + id + ">"
	}
	if date, err := h.Date(); err == nil && !date.IsZero() {
		msg.ReceivedAt = date.UTC()
	}

	var plain, html string
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			if plain != "" || html != "" {
				slog.Warn("stopped reading malformed message part", "message_id", msg.MessageID, "error", err)
				break
			}
			return nil, fmt.Errorf("read message part: %w", err)
		}
		if p == nil {
			break
		}

		switch ph := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := ph.ContentType()
			name, _ := (&mail.AttachmentHeader{Header: ph.Header}).Filename()
			switch {
			case ct == "text/plain" && name == "":
				if plain == "" {
					plain = readText(p.Body)
				}
			case ct == "text/html" && name == "":
				if html == "" {
					html = readText(p.Body)
				}
			case name != "":
				// inline images and other named parts are kept as attachments
				if a, ok := readAttachment(p.Body, name, ct, maxAttachment); ok {
					msg.Attachments = append(msg.Attachments, a)
				}
			}
		case *mail.AttachmentHeader:
			name, _ := ph.Filename()
			ct, _, _ := ph.ContentType()
			if name == "" {
				name = "attachment"
			}
			if a, ok := readAttachment(p.Body, name, ct, maxAttachment); ok {
				msg.Attachments = append(msg.Attachments, a)
			} else {
				slog.Warn("dropped oversized attachment", "message_id", msg.MessageID, "filename", name)
			}
		}
	}

	switch {
	case strings.TrimSpace(plain) != "":
		msg.Body = strings.TrimSpace(plain)
		if htmltext.LooksLikeHTML(msg.Body) {
			msg.Body = htmltext.ToText(msg.Body)
		}
	case html != "":
		msg.Body = htmltext.ToText(html)
	}
	return msg, nil
}

func readText(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	if err != nil && len(b) == 0 {
		return ""
	}
	return strings.ToValidUTF8(string(b), "�")
}

func readAttachment(r io.Reader, name, contentType string, limit int64) (models.RawAttachment, bool) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil || int64(len(data)) > limit {
		return models.RawAttachment{}, false
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return models.RawAttachment{Filename: name, ContentType: contentType, Data: data}, true
}

// fallbackReceivedAt fills a missing Date header.
func fallbackReceivedAt(msg *models.InboundMessage, internal, now time.Time) {
	if !msg.ReceivedAt.IsZero() {
		return
	}
	if !internal.IsZero() {
		msg.ReceivedAt = internal.UTC()
		return
	}
	msg.ReceivedAt = now.UTC()
}
