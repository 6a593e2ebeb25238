package classify

import (
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/drakeshin/EPUB-AI-Translator/internal/archive"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

const validChapter = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Chapter 1</title></head>
<body><p>Some readable prose.</p></body>
</html>`

func TestClassify(t *testing.T) {
	testCases := []struct {
		name     string
		entry    archive.Entry
		expected Class
	}{
		{
			name:     "Well-formed chapter is translatable",
			entry:    archive.Entry{Name: "OEBPS/ch1.xhtml", Data: []byte(validChapter)},
			expected: Translatable,
		},
		{
			name:     "Plain html extension is translatable",
			entry:    archive.Entry{Name: "ch2.html", Data: []byte("<html><body><p>Hi</p></body></html>")},
			expected: Translatable,
		},
		{
			name:     "Mimetype is structural",
			entry:    archive.Entry{Name: "mimetype", Data: []byte("application/epub+zip")},
			expected: Structural,
		},
		{
			name:     "Stylesheet is structural",
			entry:    archive.Entry{Name: "OEBPS/style.css", Data: []byte("body { margin: 0 }")},
			expected: Structural,
		},
		{
			name:     "Package document is structural",
			entry:    archive.Entry{Name: "OEBPS/content.opf", Data: []byte(`<?xml version="1.0"?><package/>`)},
			expected: Structural,
		},
		{
			name:     "Image is structural",
			entry:    archive.Entry{Name: "OEBPS/images/cover.png", Data: []byte{0x89, 0x50, 0x4e, 0x47}},
			expected: Structural,
		},
		{
			name:     "NCX table of contents is structural",
			entry:    archive.Entry{Name: "OEBPS/toc.ncx", Data: []byte(`<?xml version="1.0"?><ncx/>`)},
			expected: Structural,
		},
		{
			name:     "Nav document by name is structural",
			entry:    archive.Entry{Name: "OEBPS/nav.xhtml", Data: []byte(validChapter)},
			expected: Structural,
		},
		{
			name:     "Nav name check is case-insensitive",
			entry:    archive.Entry{Name: "OEBPS/TOC.xhtml", Data: []byte(validChapter)},
			expected: Structural,
		},
		{
			name: "Nav document by epub:type is structural",
			entry: archive.Entry{
				Name: "OEBPS/contents.xhtml",
				Data: []byte(`<html xmlns:epub="http://www.idpf.org/2007/ops"><body><nav epub:type="toc"><ol><li>Ch 1</li></ol></nav></body></html>`),
			},
			expected: Structural,
		},
		{
			name: "Nav element without toc type stays translatable",
			entry: archive.Entry{
				Name: "OEBPS/sidebar.xhtml",
				Data: []byte(`<html><body><nav><p>Links</p></nav><p>Prose</p></body></html>`),
			},
			expected: Translatable,
		},
		{
			name:     "Malformed chapter falls back to structural",
			entry:    archive.Entry{Name: "OEBPS/broken.xhtml", Data: []byte("<html><body><p>Unclosed</body></html>")},
			expected: Structural,
		},
		{
			name:     "Chapter with named entities is translatable",
			entry:    archive.Entry{Name: "OEBPS/ch3.xhtml", Data: []byte("<html><body><p>One&nbsp;two &mdash; three</p></body></html>")},
			expected: Translatable,
		},
	}

	classifier := NewClassifier(testLogger())
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifier.Classify(tc.entry)
			if got != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestDocumentTitle(t *testing.T) {
	testCases := []struct {
		name     string
		doc      string
		expected string
	}{
		{
			name:     "Heading wins",
			doc:      `<html><head><title>Book</title></head><body><h1>Chapter One</h1></body></html>`,
			expected: "Chapter One",
		},
		{
			name:     "Falls back to title element",
			doc:      `<html><head><title>Colophon</title></head><body><p>text</p></body></html>`,
			expected: "Colophon",
		},
		{
			name:     "Untitled document",
			doc:      `<html><body><p>text</p></body></html>`,
			expected: "Untitled",
		},
		{
			name:     "Whitespace is trimmed",
			doc:      "<html><body><h2>\n  Preface\n</h2></body></html>",
			expected: "Preface",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := DocumentTitle([]byte(tc.doc))
			if got != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestPlainText(t *testing.T) {
	doc := `<html><body><h1>Title</h1><p>First sentence. <b>Second</b> one.</p></body></html>`
	got := PlainText([]byte(doc))

	for _, want := range []string{"Title", "First sentence.", "Second", "one."} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected plain text to contain %q, got %q", want, got)
		}
	}
	if strings.Contains(got, "<") {
		t.Errorf("Expected markup stripped, got %q", got)
	}
}
