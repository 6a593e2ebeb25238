package markup

import (
	"bytes"
	"io"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// Span is one isolated unit of human-visible text within a content document.
// Index is the span's position in document order and is the reinsertion key:
// isolating and reinserting walk the token stream identically, so the same
// index always lands on the same location.
type Span struct {
	Index int
	Text  string
}

// TranslatableAttrs is the fixed allow-list of attributes whose values hold
// user-visible prose. Anything not listed here passes through untouched.
var TranslatableAttrs = map[string]bool{
	"alt":   true,
	"title": true,
}

// skipElements never contain user-visible text.
var skipElements = map[string]bool{
	"script": true,
	"style":  true,
}

// rawTextElements put the tokenizer into raw-text mode after their start
// tag. A self-closed one has no content, so the tokenizer must be told the
// next token is regular markup again.
var rawTextElements = map[string]bool{
	"iframe":    true,
	"noembed":   true,
	"noframes":  true,
	"noscript":  true,
	"plaintext": true,
	"script":    true,
	"style":     true,
	"textarea":  true,
	"title":     true,
	"xmp":       true,
}

// Isolate returns all human-visible text spans of the document in document
// order: non-whitespace text nodes outside script/style plus allow-listed
// attribute values. Whitespace-only nodes yield no span.
func Isolate(doc []byte) ([]Span, error) {
	spans, _, err := transform(doc, nil)
	return spans, err
}

// Reinsert produces a new document with each span's location replaced by its
// translated text. Every byte outside the replaced spans is carried verbatim
// from the input, including tags, untranslated attributes, comments, and the
// whitespace framing each text node.
func Reinsert(doc []byte, spans []Span) ([]byte, error) {
	replacements := make(map[int]string, len(spans))
	for _, span := range spans {
		replacements[span.Index] = span.Text
	}

	_, out, err := transform(doc, replacements)
	return out, err
}

// transform walks the token stream once, emitting spans and, when
// replacements is non-nil, assembling the output document.
func transform(doc []byte, replacements map[int]string) ([]Span, []byte, error) {
	tokenizer := html.NewTokenizer(bytes.NewReader(doc))

	var out bytes.Buffer
	var spans []Span
	index := 0
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			if err := tokenizer.Err(); err == io.EOF {
				break
			} else {
				return nil, nil, err
			}
		}

		raw := append([]byte(nil), tokenizer.Raw()...)

		switch tt {
		case html.TextToken:
			if skipDepth > 0 {
				out.Write(raw)
				continue
			}

			rawStr := string(raw)
			lead, mid, trail := splitWhitespace(rawStr)
			if mid == "" {
				out.Write(raw)
				continue
			}

			text := html.UnescapeString(mid)
			spans = append(spans, Span{Index: index, Text: text})

			if repl, ok := replacements[index]; ok {
				out.WriteString(lead)
				out.WriteString(escapeText(repl))
				out.WriteString(trail)
			} else {
				out.Write(raw)
			}
			index++

		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			if tt == html.StartTagToken && skipElements[token.Data] {
				skipDepth++
			}
			if tt == html.SelfClosingTagToken && rawTextElements[token.Data] {
				tokenizer.NextIsNotRawText()
			}

			rawOut := raw
			if skipDepth == 0 {
				for _, attr := range token.Attr {
					if !TranslatableAttrs[attr.Key] {
						continue
					}
					if strings.TrimSpace(attr.Val) == "" {
						continue
					}
					if _, _, ok := findQuotedValue(rawOut, attr.Key); !ok {
						continue
					}

					spans = append(spans, Span{Index: index, Text: attr.Val})
					if repl, ok := replacements[index]; ok {
						rawOut = replaceAttrValue(rawOut, attr.Key, escapeAttr(repl))
					}
					index++
				}
			}
			out.Write(rawOut)

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if skipElements[string(name)] && skipDepth > 0 {
				skipDepth--
			}
			out.Write(raw)

		default:
			out.Write(raw)
		}
	}

	return spans, out.Bytes(), nil
}

// splitWhitespace returns the leading whitespace, trimmed middle, and
// trailing whitespace of a raw text node. Trimming happens on the raw bytes
// so entities are never mistaken for literal whitespace.
func splitWhitespace(s string) (lead, mid, trail string) {
	start := len(s) - len(strings.TrimLeftFunc(s, unicode.IsSpace))
	trimmedRight := strings.TrimRightFunc(s, unicode.IsSpace)
	if start >= len(trimmedRight) {
		return s, "", ""
	}
	return s[:start], s[start:len(trimmedRight)], s[len(trimmedRight):]
}

// replaceAttrValue splices a new value into the first quoted occurrence of
// the named attribute inside a raw tag token, leaving every other byte of
// the tag untouched.
func replaceAttrValue(raw []byte, key, val string) []byte {
	start, end, ok := findQuotedValue(raw, key)
	if !ok {
		return raw
	}

	var buf bytes.Buffer
	buf.Write(raw[:start])
	buf.WriteString(val)
	buf.Write(raw[end:])
	return buf.Bytes()
}

// findQuotedValue locates the quoted value of the named attribute inside a
// raw tag token. Unquoted values are never located; isolation checks this
// too, so a span is only emitted where reinsertion can splice.
func findQuotedValue(raw []byte, key string) (start, end int, ok bool) {
	i := 1
	for i < len(raw) && !isSpaceByte(raw[i]) && raw[i] != '>' {
		i++
	}

	for i < len(raw) {
		for i < len(raw) && (isSpaceByte(raw[i]) || raw[i] == '/') {
			i++
		}
		if i >= len(raw) || raw[i] == '>' {
			break
		}

		nameStart := i
		for i < len(raw) && raw[i] != '=' && raw[i] != '>' && raw[i] != '/' && !isSpaceByte(raw[i]) {
			i++
		}
		name := string(raw[nameStart:i])

		for i < len(raw) && isSpaceByte(raw[i]) {
			i++
		}
		if i >= len(raw) || raw[i] != '=' {
			continue
		}
		i++
		for i < len(raw) && isSpaceByte(raw[i]) {
			i++
		}
		if i >= len(raw) {
			break
		}

		quote := raw[i]
		if quote != '"' && quote != '\'' {
			for i < len(raw) && !isSpaceByte(raw[i]) && raw[i] != '>' {
				i++
			}
			continue
		}
		i++
		valStart := i
		for i < len(raw) && raw[i] != quote {
			i++
		}
		if i >= len(raw) {
			break
		}

		if strings.EqualFold(name, key) {
			return valStart, i, true
		}
		i++
	}

	return 0, 0, false
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f'
}

func escapeText(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

func escapeAttr(s string) string {
	s = escapeText(s)
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}
