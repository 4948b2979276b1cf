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
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/bcem/supportdesk/internal/config"
	"github.com/bcem/supportdesk/internal/models"
)

const plainMessage = "From: =?utf-8?B?0JjQstCw0L0g0J/QtdGC0YDQvtCy?= <Ivan@Client.example>\r\n" +
	"To: support@eris.example\r\n" +
	"Subject: =?utf-8?B?0J3QtSDRgNCw0LHQvtGC0LDQtdGCINC00LDRgtGH0LjQug==?=\r\n" +
	"Message-Id: <abc-1@client.example>\r\n" +
	"Date: Mon, 02 Mar 2026 09:15:00 +0300\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"=D0=94=D0=B0=D1=82=D1=87=D0=B8=D0=BA =D0=BD=D0=B5 =D0=B2=D0=BA=D0=BB=D1=8E=D1=87=D0=B0=D0=B5=D1=82=D1=81=D1=8F\r\n"

const multipartMessage = "From: client@example.com\r\n" +
	"Subject: Report\r\n" +
	"Message-Id: <mp-2@client.example>\r\n" +
	"Content-Type: multipart/mixed; boundary=XYZ\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<html><body><p>See <b>log</b></p><script>x()</script></body></html>\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; name=log.txt\r\n" +
	"Content-Disposition: attachment; filename=log.txt\r\n" +
	"\r\n" +
	"error 42\r\n" +
	"--XYZ\r\n" +
	"Content-Type: application/octet-stream\r\n" +
	"Content-Disposition: attachment; filename=big.bin\r\n" +
	"\r\n" +
	"0123456789012345678901234567890123456789\r\n" +
	"--XYZ--\r\n"

func TestDecode_PlainText(t *testing.T) {
	msg, err := Decode([]byte(plainMessage), 0)
	require.NoError(t, err)

	assert.Equal(t, "<abc-1@client.example>", msg.MessageID)
	assert.Equal(t, "Не работает датчик", msg.Subject)
	assert.Equal(t, "ivan@client.example", msg.From.Address)
	assert.Equal(t, "Иван Петров", msg.From.Name)
	assert.Equal(t, "Датчик не включается", msg.Body)
	assert.Equal(t, time.Date(2026, 3, 2, 6, 15, 0, 0, time.UTC), msg.ReceivedAt)
	assert.Empty(t, msg.Attachments)
}

// TestDecode_HTMLFallbackAndAttachments verifies the HTML body is converted
// and oversized attachments are dropped.
func TestDecode_HTMLFallbackAndAttachments(t *testing.T) {
	msg, err := Decode([]byte(multipartMessage), 20)
	require.NoError(t, err)

	assert.Equal(t, "See log", msg.Body)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "log.txt", msg.Attachments[0].Filename)
	assert.Equal(t, "text/plain", msg.Attachments[0].ContentType)
	assert.Equal(t, "error 42", strings.TrimSpace(string(msg.Attachments[0].Data)))
}

func TestFallbackReceivedAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	internal := now.Add(-time.Hour)

	m := &models.InboundMessage{}
	fallbackReceivedAt(m, internal, now)
	assert.Equal(t, internal, m.ReceivedAt)

	m = &models.InboundMessage{}
	fallbackReceivedAt(m, time.Time{}, now)
	assert.Equal(t, now, m.ReceivedAt)
}

func testFetcher(client *fakeIMAPClient) *Fetcher {
	return &Fetcher{
		cfg:       config.MailboxConfig{Host: "imap.example", User: "support", Password: "pw", Folder: "INBOX"},
		batchSize: DefaultBatchSize,
		now:       func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) },
		newClient: func() (imapClient, error) { return client, nil },
	}
}

// TestFetch_MarksHandledSeen verifies handled and undecodable messages are
// flagged while handler failures stay unseen.
func TestFetch_MarksHandledSeen(t *testing.T) {
	client := &fakeIMAPClient{
		uids: []imap.UID{11, 12, 13},
		bodies: map[imap.UID][]byte{
			11: []byte(plainMessage),
			12: []byte(multipartMessage),
			13: []byte("not a message"),
		},
	}
	var got []string
	handler := func(_ context.Context, msg *models.InboundMessage) error {
		got = append(got, msg.UID)
		if msg.UID == "12" {
			return errors.New("db down")
		}
		return nil
	}

	require.NoError(t, testFetcher(client).Fetch(context.Background(), handler))
	assert.Equal(t, []string{"11", "12"}, got)
	assert.Equal(t, []imap.UID{11, 13}, client.seen)
	assert.True(t, client.loggedIn)
	assert.Equal(t, 1, client.logoutCalls)
	assert.True(t, client.closed)
}

func TestFetch_EmptyMailbox(t *testing.T) {
	client := &fakeIMAPClient{}
	require.NoError(t, testFetcher(client).Fetch(context.Background(), func(context.Context, *models.InboundMessage) error {
		t.Fatal("handler should not run")
		return nil
	}))
	assert.Zero(t, client.storeCalls)
	assert.Equal(t, 1, client.logoutCalls)
}

func TestFetch_SynthesizesMissingMessageID(t *testing.T) {
	client := &fakeIMAPClient{
		uids:   []imap.UID{7},
		bodies: map[imap.UID][]byte{7: []byte("From: a@b.example\r\nSubject: hi\r\n\r\nbody\r\n")},
	}
	var id string
	require.NoError(t, testFetcher(client).Fetch(context.Background(), func(_ context.Context, m *models.InboundMessage) error {
		id = m.MessageID
		return nil
	}))
	assert.Equal(t, "imap:INBOX:7", id)
}

func TestFetch_BatchLimit(t *testing.T) {
	client := &fakeIMAPClient{
		uids:   []imap.UID{3, 1, 2},
		bodies: map[imap.UID][]byte{1: []byte(plainMessage), 2: []byte(plainMessage), 3: []byte(plainMessage)},
	}
	f := testFetcher(client)
	f.batchSize = 2

	var n int
	require.NoError(t, f.Fetch(context.Background(), func(context.Context, *models.InboundMessage) error {
		n++
		return nil
	}))
	assert.Equal(t, 2, n)
	assert.Equal(t, []imap.UID{1, 2}, client.fetched)
}

func TestFetch_Errors(t *testing.T) {
	noop := func(context.Context, *models.InboundMessage) error { return nil }

	err := testFetcher(&fakeIMAPClient{loginErr: errors.New("bad creds")}).Fetch(context.Background(), noop)
	assert.ErrorContains(t, err, "imap auth")

	err = testFetcher(&fakeIMAPClient{selectErr: errors.New("no folder")}).Fetch(context.Background(), noop)
	assert.ErrorContains(t, err, "imap select")

	f := testFetcher(nil)
	f.newClient = func() (imapClient, error) { return nil, errors.New("refused") }
	assert.ErrorContains(t, f.Fetch(context.Background(), noop), "imap connect")

	assert.Error(t, testFetcher(&fakeIMAPClient{}).Fetch(context.Background(), nil))
}

func TestFetch_OAuthBearer(t *testing.T) {
	client := &fakeIMAPClient{}
	f := testFetcher(client)
	f.tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-1"})

	require.NoError(t, f.Fetch(context.Background(), func(context.Context, *models.InboundMessage) error { return nil }))
	assert.False(t, client.loggedIn)
	require.NotNil(t, client.sasl)
	mech, ir, err := client.sasl.Start()
	require.NoError(t, err)
	assert.Equal(t, sasl.OAuthBearer, mech)
	assert.Contains(t, string(ir), "tok-1")
}

func TestNewFetcher_RequiresConfig(t *testing.T) {
	_, err := NewFetcher(context.Background(), config.MailboxConfig{Host: "imap.example"}, 0)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

type fakeIMAPClient struct {
	uids   []imap.UID
	bodies map[imap.UID][]byte

	loginErr  error
	selectErr error

	loggedIn    bool
	sasl        sasl.Client
	fetched     []imap.UID
	seen        []imap.UID
	storeCalls  int
	logoutCalls int
	closed      bool
}

func (c *fakeIMAPClient) Login(_, _ string) commandWaiter {
	c.loggedIn = c.loginErr == nil
	return &fakeCommand{err: c.loginErr}
}

func (c *fakeIMAPClient) Authenticate(s sasl.Client) error {
	c.sasl = s
	return nil
}

func (c *fakeIMAPClient) Logout() commandWaiter {
	c.logoutCalls++
	return &fakeCommand{}
}

func (c *fakeIMAPClient) Close() error { c.closed = true; return nil }

func (c *fakeIMAPClient) Select(_ string, _ *imap.SelectOptions) selectWaiter {
	return &fakeSelect{err: c.selectErr}
}

func (c *fakeIMAPClient) UIDSearch(_ *imap.SearchCriteria, _ *imap.SearchOptions) searchWaiter {
	return &fakeSearch{data: &imap.SearchData{All: imap.UIDSetNum(c.uids...)}}
}

func (c *fakeIMAPClient) Fetch(numSet imap.NumSet, _ *imap.FetchOptions) fetchWaiter {
	set := numSet.(imap.UIDSet)
	var bufs []*imapclient.FetchMessageBuffer
	for _, uid := range c.uids {
		if !set.Contains(uid) {
			continue
		}
		c.fetched = append(c.fetched, uid)
	}
	sortUIDs(c.fetched)
	for _, uid := range c.fetched {
		bufs = append(bufs, &imapclient.FetchMessageBuffer{
			UID: uid,
			BodySection: []imapclient.FetchBodySectionBuffer{{
				Section: &imap.FetchItemBodySection{Peek: true},
				Bytes:   c.bodies[uid],
			}},
		})
	}
	return &fakeFetch{bufs: bufs}
}

func (c *fakeIMAPClient) Store(numSet imap.NumSet, _ *imap.StoreFlags, _ *imap.StoreOptions) fetchWaiter {
	c.storeCalls++
	set := numSet.(imap.UIDSet)
	for _, uid := range c.fetched {
		if set.Contains(uid) {
			c.seen = append(c.seen, uid)
		}
	}
	return &fakeFetch{}
}

func sortUIDs(uids []imap.UID) {
	for i := 1; i < len(uids); i++ {
		for j := i; j > 0 && uids[j] < uids[j-1]; j-- {
			uids[j], uids[j-1] = uids[j-1], uids[j]
		}
	}
}

type fakeCommand struct{ err error }

func (c *fakeCommand) Wait() error { return c.err }

type fakeSelect struct{ err error }

func (s *fakeSelect) Wait() (*imap.SelectData, error) { return &imap.SelectData{}, s.err }

type fakeSearch struct{ data *imap.SearchData }

func (s *fakeSearch) Wait() (*imap.SearchData, error) { return s.data, nil }

type fakeFetch struct {
	bufs []*imapclient.FetchMessageBuffer
}

func (f *fakeFetch) Collect() ([]*imapclient.FetchMessageBuffer, error) { return f.bufs, nil }
func (f *fakeFetch) Close() error                                       { return nil }
