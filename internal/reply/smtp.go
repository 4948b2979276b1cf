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

package reply

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

const (
	implicitTLSPort    = 465
	defaultDialTimeout = 15 * time.Second
	// sessionTimeout bounds the whole SMTP exchange after connecting.
	sessionTimeout = 60 * time.Second
)

// Message is an outbound plain-text reply.
type Message struct {
	To        string
	ToName    string
	Subject   string
	Body      string
	InReplyTo string
}

// SMTPConfig holds the outbound transport settings.
type SMTPConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	From        string
	DialTimeout time.Duration
}

// SMTPSender delivers messages over SMTP: implicit TLS on port 465,
// STARTTLS when the server offers it otherwise.
type SMTPSender struct {
	cfg SMTPConfig
	now func() time.Time
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	return &SMTPSender{cfg: cfg, now: time.Now}
}

// Send composes and delivers msg, returning the generated Message-Id.
func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	raw, messageID, err := s.compose(msg)
	if err != nil {
		return "", err
	}

	client, conn, err := s.dial(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	deadline := time.Now().Add(sessionTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if err := s.authenticate(client); err != nil {
		return "", err
	}
	envelopeFrom, err := mail.ParseAddress(s.cfg.From)
	if err != nil {
		return "", fmt.Errorf("parse sender address: %w", err)
	}
	if err := client.Mail(envelopeFrom.Address); err != nil {
		return "", fmt.Errorf("set sender: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return "", fmt.Errorf("set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return "", fmt.Errorf("start data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return "", fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finish data: %w", err)
	}
	if err := client.Quit(); err != nil {
		return "", fmt.Errorf("quit session: %w", err)
	}
	return messageID, nil
}

// compose renders msg as an RFC 5322 message.
func (s *SMTPSender) compose(msg Message) ([]byte, string, error) {
	from, err := mail.ParseAddress(s.cfg.From)
	if err != nil {
		return nil, "", fmt.Errorf("parse sender address: %w", err)
	}

	var h mail.Header
	h.SetDate(s.now())
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", []*mail.Address{{Name: msg.ToName, Address: msg.To}})
	h.SetSubject(msg.Subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	if id := strings.Trim(strings.TrimSpace(msg.InReplyTo), "<>"); id != "" {
		h.SetMsgIDList("In-Reply-To", []string{id})
		h.SetMsgIDList("References", []string{id})
	}

	host := "localhost"
	if at := strings.LastIndexByte(from.Address, '@'); at >= 0 {
		host = from.Address[at+1:]
	}
	if err := h.GenerateMessageIDWithHostname(host); err != nil {
		return nil, "", fmt.Errorf("generate message id: %w", err)
	}
	messageID, err := h.MessageID()
	if err != nil {
		return nil, "", fmt.Errorf("read message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, "", fmt.Errorf("create message writer: %w", err)
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return nil, "", fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close message writer: %w", err)
	}
	return buf.Bytes(), messageID, nil
}

func (s *SMTPSender) dial(ctx context.Context) (*smtp.Client, net.Conn, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	tlsConfig := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
	dialer := &net.Dialer{Timeout: s.cfg.DialTimeout}

	if s.cfg.Port == implicitTLSPort {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: tlsConfig}
		conn, err := tlsDialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, nil, fmt.Errorf("connect via implicit TLS: %w", err)
		}
		client, err := smtp.NewClient(conn, s.cfg.Host)
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("create SMTP client: %w", err)
		}
		return client, conn, nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to SMTP server: %w", err)
	}
	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("create SMTP client: %w", err)
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("start TLS: %w", err)
		}
	} else if s.cfg.User != "" {
		client.Close()
		return nil, nil, errors.New("server does not offer STARTTLS; refusing to send credentials in clear text")
	}
	return client, conn, nil
}

func (s *SMTPSender) authenticate(client *smtp.Client) error {
	if s.cfg.User == "" || s.cfg.Password == "" {
		return nil
	}
	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	return nil
}
