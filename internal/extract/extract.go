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

// Package extract pulls best-effort text out of attachment bytes.
//
// Extraction never fails hard: every outcome is either text (ok=true) or a
// short human-readable note (ok=false) that is passed on to the classifier.
package extract

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultBudget is the maximum extracted length in runes.
	DefaultBudget = 30000
	// DefaultOCRPages bounds OCR of image-only PDFs.
	DefaultOCRPages = 10
)

// Notes returned when no text can be produced.
const (
	NoteVideo       = "Получено видео-вложение. Анализ видео не выполняется; оператор просмотрит вручную."
	NoteLegacyDoc   = "Получен документ в формате .doc. Автоматическое извлечение текста не поддерживается; требуется ручная проверка."
	NoteUnsupported = "Формат вложения не поддерживается для автоматического анализа; требуется ручная проверка."
	NoteScannedPDF  = "PDF не содержит текстового слоя, распознать текст не удалось; требуется ручная проверка."
	NoteBroken      = "Не удалось прочитать вложение; требуется ручная проверка."
)

// Extractor extracts text from attachments.
type Extractor struct {
	OCR      OCR
	Budget   int
	OCRPages int
	Timeout  time.Duration
}

// New returns an extractor with default limits. ocr may be nil.
func New(ocr OCR) *Extractor {
	return &Extractor{
		OCR:      ocr,
		Budget:   DefaultBudget,
		OCRPages: DefaultOCRPages,
		Timeout:  2 * time.Minute,
	}
}

type kind int

const (
	kindUnsupported kind = iota
	kindPDF
	kindDOCX
	kindDOC
	kindXLSX
	kindText
	kindImage
	kindVideo
)

func detect(filename, mediaType string) kind {
	ext := strings.ToLower(filepath.Ext(filename))
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	switch {
	case ext == ".pdf" || mt == "application/pdf":
		return kindPDF
	case ext == ".docx" || mt == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return kindDOCX
	case ext == ".doc" || mt == "application/msword":
		return kindDOC
	case ext == ".xlsx" || mt == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return kindXLSX
	case ext == ".txt" || ext == ".csv" || ext == ".log" || mt == "text/plain" || mt == "text/csv":
		return kindText
	case isImageExt(ext) || strings.HasPrefix(mt, "image/"):
		return kindImage
	case strings.HasPrefix(mt, "video/") || isVideoExt(ext):
		return kindVideo
	}
	return kindUnsupported
}

func isImageExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".gif", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}

func isVideoExt(ext string) bool {
	switch ext {
	case ".mp4", ".mov", ".avi", ".mkv", ".webm", ".3gp":
		return true
	}
	return false
}

// Extract returns (true, text) when text could be produced, possibly empty
// for images, and (false, note) otherwise.
func (e *Extractor) Extract(filename, mediaType string, data []byte) (bool, string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout())
	defer cancel()

	switch detect(filename, mediaType) {
	case kindPDF:
		return e.pdf(ctx, filename, data)
	case kindDOCX:
		text, err := docxText(data)
		if err != nil {
			slog.Warn("docx extraction failed", "filename", filename, "error", err)
			return false, NoteBroken
		}
		return true, Truncate(text, e.budget())
	case kindXLSX:
		text, err := xlsxText(data)
		if err != nil {
			slog.Warn("xlsx extraction failed", "filename", filename, "error", err)
			return false, NoteBroken
		}
		return true, Truncate(text, e.budget())
	case kindText:
		return true, Truncate(strings.ToValidUTF8(string(data), ""), e.budget())
	case kindImage:
		if e.OCR == nil {
			return true, ""
		}
		text, err := e.OCR.Image(ctx, data)
		if err != nil {
			// empty recognition is tolerated for images
			slog.Warn("image ocr failed", "filename", filename, "error", err)
			return true, ""
		}
		return true, Truncate(strings.TrimSpace(text), e.budget())
	case kindDOC:
		return false, NoteLegacyDoc
	case kindVideo:
		return false, NoteVideo
	default:
		return false, NoteUnsupported
	}
}

func (e *Extractor) pdf(ctx context.Context, filename string, data []byte) (bool, string) {
	text, err := pdfText(data)
	if err != nil {
		slog.Warn("pdf text layer unreadable", "filename", filename, "error", err)
	}
	if usable(text) {
		return true, Truncate(text, e.budget())
	}

	if e.OCR != nil {
		ocrText, err := e.OCR.PDF(ctx, data, e.pages())
		if err != nil {
			slog.Warn("pdf ocr failed", "filename", filename, "error", err)
		} else if usable(ocrText) {
			return true, Truncate(ocrText, e.budget())
		}
	}
	return false, NoteScannedPDF
}

// usable reports whether text has at least a few letters or digits.
func usable(text string) bool {
	n := 0
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
			if n >= 3 {
				return true
			}
		}
	}
	return false
}

func (e *Extractor) budget() int {
	if e.Budget <= 0 {
		return DefaultBudget
	}
	return e.Budget
}

func (e *Extractor) pages() int {
	if e.OCRPages <= 0 {
		return DefaultOCRPages
	}
	return e.OCRPages
}

func (e *Extractor) timeout() time.Duration {
	if e.Timeout <= 0 {
		return 2 * time.Minute
	}
	return e.Timeout
}

// Truncate limits text to budget runes. Longer text is cut at the last
// space when that space lies in the second half of the budget, otherwise
// hard at the budget. Text within budget is returned unchanged.
func Truncate(text string, budget int) string {
	if budget <= 0 || utf8.RuneCountInString(text) <= budget {
		return text
	}
	r := []rune(text)[:budget]
	cut := len(r)
	for i := len(r) - 1; i > budget/2; i-- {
		if unicode.IsSpace(r[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(r[:cut]), unicode.IsSpace)
}

// Result is the outcome of one attachment's extraction.
type Result struct {
	Filename string
	OK       bool
	Text     string
}

// Combine joins successful, non-empty extractions under per-file headers
// and bounds the whole block by budget.
func Combine(results []Result, budget int) string {
	var b strings.Builder
	for _, r := range results {
		text := strings.TrimSpace(r.Text)
		if !r.OK || text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("=== " + r.Filename + " ===\n" + text)
	}
	return Truncate(b.String(), budget)
}

// Summary lists every attachment with its extraction outcome, one per line.
func Summary(results []Result) string {
	var lines []string
	for _, r := range results {
		switch {
		case !r.OK:
			lines = append(lines, "- "+r.Filename+": "+r.Text)
		case strings.TrimSpace(r.Text) == "":
			lines = append(lines, "- "+r.Filename+": текст не обнаружен")
		default:
			lines = append(lines, "- "+r.Filename+": текст извлечён")
		}
	}
	return strings.Join(lines, "\n")
}
