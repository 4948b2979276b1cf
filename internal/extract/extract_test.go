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
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// fakeOCR records calls and returns canned text.
type fakeOCR struct {
	imageText string
	pdfText   string
	err       error
	pdfPages  int
}

func (f *fakeOCR) Image(_ context.Context, _ []byte) (string, error) {
	return f.imageText, f.err
}

func (f *fakeOCR) PDF(_ context.Context, _ []byte, maxPages int) (string, error) {
	f.pdfPages = maxPages
	return f.pdfText, f.err
}

// TestTruncate verifies the budget, the word-boundary cut and that short
// text is returned unchanged.
func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		budget int
		want   string
	}{
		{"short unchanged", "hello world", 50, "hello world"},
		{"exact unchanged", "abcde", 5, "abcde"},
		{"cut at space", "alpha beta gamma", 12, "alpha beta"},
		{"hard cut when space in first half", "ab cdefghijkl", 8, "ab cdefg"},
		{"cyrillic counted in runes", "привет мир как дела", 12, "привет мир"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.text, tt.budget)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, utf8.RuneCountInString(got), tt.budget)
		})
	}
}

// TestTruncate_LongInputAlwaysWithinBudget verifies the bound on large text.
func TestTruncate_LongInputAlwaysWithinBudget(t *testing.T) {
	text := strings.Repeat("калибровка датчика ", 5000)
	got := Truncate(text, DefaultBudget)

	assert.LessOrEqual(t, utf8.RuneCountInString(got), DefaultBudget)
	assert.True(t, strings.HasSuffix(got, "датчика") || strings.HasSuffix(got, "калибровка"))
}

// TestExtract_Policy verifies the per-type outcomes.
func TestExtract_Policy(t *testing.T) {
	e := New(nil)

	tests := []struct {
		name      string
		filename  string
		mediaType string
		data      []byte
		wantOK    bool
		want      string
	}{
		{"plain text", "log.txt", "text/plain", []byte("Ошибка E03 на датчике"), true, "Ошибка E03 на датчике"},
		{"video", "clip.mp4", "video/mp4", []byte{0, 1}, false, NoteVideo},
		{"video by media type", "clip", "video/quicktime", nil, false, NoteVideo},
		{"legacy doc", "passport.doc", "application/msword", []byte{0xd0, 0xcf}, false, NoteLegacyDoc},
		{"unsupported", "archive.rar", "application/x-rar", []byte("x"), false, NoteUnsupported},
		{"image without ocr", "photo.jpg", "image/jpeg", []byte{0xff, 0xd8}, true, ""},
		{"broken pdf", "scan.pdf", "application/pdf", []byte("not a pdf"), false, NoteScannedPDF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, text := e.Extract(tt.filename, tt.mediaType, tt.data)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, text)
		})
	}
}

// TestExtract_ImageOCR verifies image OCR and that OCR errors are tolerated.
func TestExtract_ImageOCR(t *testing.T) {
	e := New(&fakeOCR{imageText: "  ЭРИС-210 S/N 12345 \n"})
	ok, text := e.Extract("plate.png", "image/png", []byte{1})
	assert.True(t, ok)
	assert.Equal(t, "ЭРИС-210 S/N 12345", text)

	e = New(&fakeOCR{err: errors.New("tesseract crashed")})
	ok, text = e.Extract("plate.png", "image/png", []byte{1})
	assert.True(t, ok)
	assert.Empty(t, text)
}

// TestExtract_ScannedPDFFallsBackToOCR verifies the bounded OCR fallback.
func TestExtract_ScannedPDFFallsBackToOCR(t *testing.T) {
	ocr := &fakeOCR{pdfText: "Паспорт прибора ДГС ЭРИС-230"}
	e := New(ocr)

	ok, text := e.Extract("scan.pdf", "application/pdf", []byte("%PDF-1.4 garbage"))
	assert.True(t, ok)
	assert.Equal(t, "Паспорт прибора ДГС ЭРИС-230", text)
	assert.Equal(t, DefaultOCRPages, ocr.pdfPages)
}

// TestExtract_DOCX verifies paragraphs and table rows.
func TestExtract_DOCX(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>Акт неисправности</w:t></w:r></w:p>` +
		`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>Прибор</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>ЭРИС-210</w:t></w:r></w:p></w:tc></w:tr>` +
		`<w:tr><w:tc><w:p><w:r><w:t>S/N</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>0042</w:t></w:r></w:p></w:tc></w:tr></w:tbl>` +
		`<w:p><w:r><w:t>Подпись</w:t></w:r></w:p>` +
		`</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	ok, text := New(nil).Extract("act.docx", "", buf.Bytes())
	assert.True(t, ok)
	assert.Equal(t, "Акт неисправности\nПодпись\nПрибор | ЭРИС-210\nS/N | 0042", text)
}

// TestExtract_XLSX verifies sheet rows are joined.
func TestExtract_XLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Датчик"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Ошибка"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "ДГС-ЭРИС"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "E02"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	ok, text := New(nil).Extract("report.xlsx", "", buf.Bytes())
	assert.True(t, ok)
	assert.Equal(t, "[Sheet1]\nДатчик | Ошибка\nДГС-ЭРИС | E02", text)
}

// TestCombineAndSummary verifies only successful text is concatenated and
// every file appears in the summary.
func TestCombineAndSummary(t *testing.T) {
	results := []Result{
		{Filename: "a.txt", OK: true, Text: "первый"},
		{Filename: "b.mp4", OK: false, Text: NoteVideo},
		{Filename: "c.png", OK: true, Text: ""},
		{Filename: "d.txt", OK: true, Text: "второй"},
	}

	assert.Equal(t, "=== a.txt ===\nпервый\n\n=== d.txt ===\nвторой", Combine(results, DefaultBudget))

	summary := Summary(results)
	assert.Contains(t, summary, "- b.mp4: "+NoteVideo)
	assert.Contains(t, summary, "- c.png: текст не обнаружен")
	assert.Contains(t, summary, "- a.txt: текст извлечён")
}
