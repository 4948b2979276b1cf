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
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
)

// imapClient is the subset of imapclient.Client the fetcher uses.
type imapClient interface {
	Login(username, password string) commandWaiter
	Authenticate(saslClient sasl.Client) error
	Logout() commandWaiter
	Close() error
	Select(mailbox string, options *imap.SelectOptions) selectWaiter
	UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter
	Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter
	Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter
}

type commandWaiter interface{ Wait() error }

type selectWaiter interface {
	Wait() (*imap.SelectData, error)
}

type searchWaiter interface {
	Wait() (*imap.SearchData, error)
}

type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
	Close() error
}

// dial opens an IMAP connection: implicit TLS when useTLS is set, a plain
// connection otherwise.
func dial(host string, port int, useTLS bool, timeout time.Duration) (imapClient, error) {
	if port == 0 {
		port = 143
		if useTLS {
			port = 993
		}
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	opts := &imapclient.Options{Dialer: &net.Dialer{Timeout: timeout}}

	var (
		c   *imapclient.Client
		err error
	)
	if useTLS {
		c, err = imapclient.DialTLS(addr, opts)
	} else {
		c, err = imapclient.DialInsecure(addr, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &clientWrapper{Client: c}, nil
}

type clientWrapper struct{ *imapclient.Client }

func (w *clientWrapper) Login(username, password string) commandWaiter {
	return w.Client.Login(username, password)
}

func (w *clientWrapper) Logout() commandWaiter { return w.Client.Logout() }

func (w *clientWrapper) Select(mailbox string, options *imap.SelectOptions) selectWaiter {
	return w.Client.Select(mailbox, options)
}

func (w *clientWrapper) UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter {
	return w.Client.UIDSearch(criteria, options)
}

func (w *clientWrapper) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	return w.Client.Fetch(numSet, options)
}

func (w *clientWrapper) Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter {
	return w.Client.Store(numSet, store, options)
}

// bodyOf returns the first non-empty fetched body section.
func bodyOf(sections []imapclient.FetchBodySectionBuffer) []byte {
	for _, s := range sections {
		if len(s.Bytes) > 0 {
			return s.Bytes
		}
	}
	return nil
}
