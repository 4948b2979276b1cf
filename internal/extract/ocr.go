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

package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// OCR recognizes text in raster images and image-only PDFs.
type OCR interface {
	Image(ctx context.Context, data []byte) (string, error)
	PDF(ctx context.Context, data []byte, maxPages int) (string, error)
}

// Tesseract runs the tesseract and pdftoppm command-line tools.
type Tesseract struct {
	TesseractBin string
	PdftoppmBin  string
	Languages    string
	DPI          int
}

// NewTesseract returns a Tesseract OCR if the tesseract binary is on PATH,
// or nil otherwise.
func NewTesseract(languages string) *Tesseract {
	bin, err := exec.LookPath("tesseract")
	if err != nil {
		return nil
	}
	pdftoppm, _ := exec.LookPath("pdftoppm")
	if languages == "" {
		languages = "rus+eng"
	}
	return &Tesseract{TesseractBin: bin, PdftoppmBin: pdftoppm, Languages: languages, DPI: 200}
}

// Image recognizes a single image.
func (t *Tesseract) Image(ctx context.Context, data []byte) (string, error) {
	dir, err := os.MkdirTemp("", "ocr-img-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return "", err
	}
	return t.recognize(ctx, in)
}

// PDF rasterizes up to maxPages pages and recognizes each in order.
func (t *Tesseract) PDF(ctx context.Context, data []byte, maxPages int) (string, error) {
	if t.PdftoppmBin == "" {
		return "", fmt.Errorf("pdftoppm not available")
	}

	dir, err := os.MkdirTemp("", "ocr-pdf-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return "", err
	}

	prefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, t.PdftoppmBin,
		"-r", strconv.Itoa(t.DPI), "-f", "1", "-l", strconv.Itoa(maxPages), "-png", in, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("pdftoppm: %w: %s", err, bytes.TrimSpace(out))
	}

	pages, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return "", err
	}
	sort.Strings(pages)

	var parts []string
	for _, p := range pages {
		text, err := t.recognize(ctx, p)
		if err != nil {
			return "", err
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func (t *Tesseract) recognize(ctx context.Context, path string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.TesseractBin, path, "stdout", "-l", t.Languages)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
