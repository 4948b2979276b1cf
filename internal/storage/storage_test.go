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

package storage

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDisk_PutSameNameTwice verifies repeated filenames do not overwrite
// each other and both round-trip.
func TestDisk_PutSameNameTwice(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	a, err := d.Put(5, "scan.pdf", []byte("first"))
	require.NoError(t, err)
	b, err := d.Put(5, "scan.pdf", []byte("second"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Regexp(t, regexp.MustCompile(`^tickets/5/[0-9a-f]{12}-scan\.pdf$`), a)

	got, err := d.Get(a)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
	got, err = d.Get(b)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

// TestDisk_RemoveCase verifies the case namespace is removed.
func TestDisk_RemoveCase(t *testing.T) {
	root := t.TempDir()
	d, err := NewDisk(root)
	require.NoError(t, err)

	_, err = d.Put(8, "a.txt", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, d.RemoveCase(8))

	_, err = os.Stat(filepath.Join(root, "tickets", "8"))
	assert.True(t, os.IsNotExist(err))
}

// TestDisk_GetRejectsTraversal verifies locators cannot escape the root.
func TestDisk_GetRejectsTraversal(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	_, err = d.Get("../../etc/passwd")
	assert.Error(t, err)
}

// TestSafeName verifies filename sanitizing.
func TestSafeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\фото 1.jpg`, "фото_1.jpg"},
		{"a<b>c?.txt", "a_b_c_.txt"},
		{"", "file"},
		{"...", "file"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeName(tt.in))
		})
	}
}
