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

// Package storage keeps attachment bytes on the local filesystem under a
// per-case namespace.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const maxNameRunes = 120

// Disk stores files below a root directory. Locators are slash-separated
// paths relative to the root: tickets/{case_id}/{uuid12}-{safe_name}.
type Disk struct {
	root string
}

// NewDisk creates the root directory if needed.
func NewDisk(root string) (*Disk, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", root, err)
	}
	return &Disk{root: root}, nil
}

// Put writes data under the case namespace and returns its locator. Each
// call gets a fresh random prefix, so equal filenames never collide.
func (d *Disk) Put(caseID int64, filename string, data []byte) (string, error) {
	prefix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	rel := filepath.ToSlash(filepath.Join(caseDir(caseID), prefix+"-"+SafeName(filename)))

	full := filepath.Join(d.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create case dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o640); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return rel, nil
}

// Get reads the bytes behind a locator.
func (d *Disk) Get(locator string) ([]byte, error) {
	full, err := d.resolve(locator)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// RemoveCase deletes every stored file of a case.
func (d *Disk) RemoveCase(caseID int64) error {
	return os.RemoveAll(filepath.Join(d.root, caseDir(caseID)))
}

func (d *Disk) resolve(locator string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(locator))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid storage locator %q", locator)
	}
	return filepath.Join(d.root, clean), nil
}

func caseDir(caseID int64) string {
	return filepath.Join("tickets", strconv.FormatInt(caseID, 10))
}

// SafeName strips directory parts and characters that are unsafe in file
// names, and caps the length. An empty result becomes "file".
func SafeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsControl(r), strings.ContainsRune(`<>:"|?*`, r):
			b.WriteRune('_')
		case unicode.IsSpace(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), ". ")
	if r := []rune(out); len(r) > maxNameRunes {
		out = string(r[len(r)-maxNameRunes:])
	}
	if out == "" {
		return "file"
	}
	return out
}
