package classify

import (
	"bytes"
	"encoding/xml"
	"io"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/drakeshin/EPUB-AI-Translator/internal/archive"
)

// Class partitions archive entries into translation candidates and
// structural content that must pass through byte-identical.
type Class string

const (
	Translatable Class = "translatable"
	Structural   Class = "structural"
)

// contentExtensions is the content-document family used for EPUB chapters.
var contentExtensions = map[string]bool{
	".xhtml": true,
	".html":  true,
	".htm":   true,
}

// navigationNames are entries used purely for structural linking.
var navigationNames = map[string]bool{
	"nav.xhtml": true,
	"toc.xhtml": true,
	"toc.ncx":   true,
}

type Classifier struct {
	logger *logrus.Logger
}

func NewClassifier(logger *logrus.Logger) *Classifier {
	return &Classifier{
		logger: logger,
	}
}

// Classify decides whether an entry is a translation candidate. An entry is
// translatable only if its name matches a content-document extension and its
// content is well-formed markup. Malformed markup in a nominally-translatable
// entry is treated as structural so one corrupt chapter cannot block the
// rest of the book.
func (c *Classifier) Classify(entry archive.Entry) Class {
	base := strings.ToLower(path.Base(entry.Name))
	if navigationNames[base] {
		return Structural
	}

	ext := strings.ToLower(path.Ext(entry.Name))
	if !contentExtensions[ext] {
		return Structural
	}

	if !wellFormed(entry.Data) {
		c.logger.Warnf("Entry %s has malformed markup, passing through unchanged", entry.Name)
		return Structural
	}

	if isNavigationDocument(entry.Data) {
		return Structural
	}

	return Translatable
}

// wellFormed checks that the document parses as well-formed markup. EPUB
// content documents are XHTML, so the XML token stream must run to EOF.
func wellFormed(data []byte) bool {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Entity = xml.HTMLEntity
	decoder.AutoClose = xml.HTMLAutoClose

	for {
		_, err := decoder.Token()
		if err == io.EOF {
			return true
		}
		if err != nil {
			return false
		}
	}
}

// isNavigationDocument detects an EPUB 3 nav document that slipped past the
// name check by probing for a nav element with epub:type="toc".
func isNavigationDocument(data []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return false
	}

	found := false
	doc.Find("nav").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if typ, ok := s.Attr("epub:type"); ok && strings.Contains(typ, "toc") {
			found = true
			return false
		}
		return true
	})

	return found
}

// DocumentTitle extracts a display title from a content document for
// progress reporting.
func DocumentTitle(data []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "Untitled"
	}

	title := doc.Find("h1, h2, h3, title").First().Text()
	if title == "" {
		title = "Untitled"
	}

	return strings.TrimSpace(title)
}

// PlainText strips markup from a content document, used for language
// detection sampling.
func PlainText(data []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return string(data)
	}

	return doc.Text()
}
