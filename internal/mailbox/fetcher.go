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

// Package mailbox reads unseen messages from an IMAP folder and normalizes
// them for ingestion.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-sasl"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/bcem/supportdesk/internal/config"
	"github.com/bcem/supportdesk/internal/models"
)

// DefaultBatchSize bounds how many unseen messages one poll fetches.
const DefaultBatchSize = 50

// ErrNotConfigured is returned when the mailbox has no host or credentials.
var ErrNotConfigured = errors.New("mailbox is not configured")

// Handler processes one decoded message. A nil return marks the message as
// seen; an error leaves it unseen so the next poll retries it.
type Handler func(ctx context.Context, msg *models.InboundMessage) error

// Fetcher drains unseen messages from one IMAP folder.
type Fetcher struct {
	cfg           config.MailboxConfig
	tokens        oauth2.TokenSource
	batchSize     int
	maxAttachment int64
	now           func() time.Time
	newClient     func() (imapClient, error)
}

// NewFetcher creates a Fetcher. When an OAuth token URL is configured the
// session authenticates with OAUTHBEARER using client-credentials tokens.
func NewFetcher(ctx context.Context, cfg config.MailboxConfig, maxAttachment int64) (*Fetcher, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	f := &Fetcher{
		cfg:           cfg,
		batchSize:     DefaultBatchSize,
		maxAttachment: maxAttachment,
		now:           time.Now,
	}
	if cfg.OAuthTokenURL != "" {
		creds := &clientcredentials.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			TokenURL:     cfg.OAuthTokenURL,
			Scopes:       cfg.OAuthScopes,
		}
		f.tokens = creds.TokenSource(ctx)
	}
	f.newClient = func() (imapClient, error) {
		return dial(cfg.Host, cfg.Port, cfg.TLS, cfg.DialTimeout)
	}
	return f, nil
}

// Fetch connects, hands every unseen message in the folder to handle and
// flags the handled ones as seen. Undecodable messages are flagged as seen
// and skipped.
func (f *Fetcher) Fetch(ctx context.Context, handle Handler) error {
	if handle == nil {
		return errors.New("mailbox fetch requires a handler")
	}

	client, err := f.newClient()
	if err != nil {
		return fmt.Errorf("imap connect: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer func() {
		stop()
		if err := client.Close(); err != nil {
			slog.Debug("imap close", "error", err)
		}
	}()

	if err := f.authenticate(client); err != nil {
		return fmt.Errorf("imap auth: %w", err)
	}
	if _, err := client.Select(f.cfg.Folder, nil).Wait(); err != nil {
		return fmt.Errorf("imap select %s: %w", f.cfg.Folder, err)
	}

	criteria := &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}
	data, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return fmt.Errorf("imap search: %w", err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return f.logout(client)
	}
	slices.Sort(uids)
	if len(uids) > f.batchSize {
		slog.Info("unseen backlog exceeds batch, remainder deferred", "unseen", len(uids), "batch", f.batchSize)
		uids = uids[:f.batchSize]
	}

	opts := &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{{Peek: true}},
	}
	bufs, err := client.Fetch(imap.UIDSetNum(uids...), opts).Collect()
	if err != nil {
		return fmt.Errorf("imap fetch: %w", err)
	}

	var seen []imap.UID
	for _, buf := range bufs {
		if ctx.Err() != nil {
			break
		}
		raw := bodyOf(buf.BodySection)
		if raw == nil {
			continue
		}

		msg, err := Decode(raw, f.maxAttachment)
		if err != nil {
			slog.Warn("undecodable message skipped", "uid", buf.UID, "error", err)
			seen = append(seen, buf.UID)
			continue
		}
		msg.UID = fmt.Sprintf("%d", buf.UID)
		if msg.MessageID == "" {
			msg.MessageID = fmt.Sprintf("imap:%s:%d", f.cfg.Folder, buf.UID)
		}
		fallbackReceivedAt(msg, buf.InternalDate, f.now())

		if err := handle(ctx, msg); err != nil {
			slog.Warn("message left unseen for retry", "uid", buf.UID, "error", err)
			continue
		}
		seen = append(seen, buf.UID)
	}

	if len(seen) > 0 {
		flags := &imap.StoreFlags{Op: imap.StoreFlagsAdd, Silent: true, Flags: []imap.Flag{imap.FlagSeen}}
		if err := client.Store(imap.UIDSetNum(seen...), flags, nil).Close(); err != nil {
			return fmt.Errorf("imap store seen: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.logout(client)
}

func (f *Fetcher) authenticate(client imapClient) error {
	if f.tokens == nil {
		return client.Login(f.cfg.User, f.cfg.Password).Wait()
	}
	tok, err := f.tokens.Token()
	if err != nil {
		return fmt.Errorf("acquire token: %w", err)
	}
	return client.Authenticate(sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
		Username: f.cfg.User,
		Token:    tok.AccessToken,
	}))
}

func (f *Fetcher) logout(client imapClient) error {
	if err := client.Logout().Wait(); err != nil {
		return fmt.Errorf("imap logout: %w", err)
	}
	return nil
}
