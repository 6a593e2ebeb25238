package markup

import (
	"testing"
)

func TestIsolate(t *testing.T) {
	testCases := []struct {
		name     string
		doc      string
		expected []string
	}{
		{
			name:     "Simple paragraph",
			doc:      `<html><body><p>Hello world</p></body></html>`,
			expected: []string{"Hello world"},
		},
		{
			name:     "Inline markup splits into sub-spans",
			doc:      `<p>This is <b>bold</b> text.</p>`,
			expected: []string{"This is", "bold", "text."},
		},
		{
			name:     "Whitespace-only nodes yield no span",
			doc:      "<div>\n   <p>  </p>\n</div>",
			expected: nil,
		},
		{
			name:     "Script and style content is skipped",
			doc:      `<style>p { color: red }</style><script>var x = "hi";</script><p>Visible</p>`,
			expected: []string{"Visible"},
		},
		{
			name:     "Self-closing script does not swallow following markup",
			doc:      `<html><body><p>Hi</p><script src="a.js"/><p>There</p></body></html>`,
			expected: []string{"Hi", "There"},
		},
		{
			name:     "Self-closing title has no content",
			doc:      `<html><head><title/></head><body><p>Text</p></body></html>`,
			expected: []string{"Text"},
		},
		{
			name:     "Unquoted translatable attribute yields no span",
			doc:      `<img alt=fox><p>Caption</p>`,
			expected: []string{"Caption"},
		},
		{
			name:     "Translatable attributes become spans",
			doc:      `<img src="fox.png" alt="A red fox"/>`,
			expected: []string{"A red fox"},
		},
		{
			name:     "Attribute spans precede element text",
			doc:      `<p title="Note">Text</p>`,
			expected: []string{"Note", "Text"},
		},
		{
			name:     "Non-translatable attributes are ignored",
			doc:      `<a href="ch2.xhtml" class="link">Next</a>`,
			expected: []string{"Next"},
		},
		{
			name:     "Empty translatable attribute yields no span",
			doc:      `<img src="deco.png" alt=""/>`,
			expected: nil,
		},
		{
			name:     "Entities are decoded in span text",
			doc:      `<p>Caf&eacute; &amp; tea</p>`,
			expected: []string{"Café & tea"},
		},
		{
			name:     "Comments yield no span",
			doc:      `<!-- note --><p>Body</p>`,
			expected: []string{"Body"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			spans, err := Isolate([]byte(tc.doc))
			if err != nil {
				t.Fatalf("Isolate failed: %v", err)
			}

			if len(spans) != len(tc.expected) {
				t.Fatalf("Expected %d spans, got %d: %v", len(tc.expected), len(spans), spans)
			}

			for i, span := range spans {
				if span.Index != i {
					t.Errorf("Span %d has index %d", i, span.Index)
				}
				if span.Text != tc.expected[i] {
					t.Errorf("Span %d does not match.\nExpected: %q\nGot:      %q", i, tc.expected[i], span.Text)
				}
			}
		})
	}
}

func TestReinsert(t *testing.T) {
	testCases := []struct {
		name     string
		doc      string
		spans    []Span
		expected string
	}{
		{
			name:     "Simple replacement",
			doc:      `<html><body><p>Hello world</p></body></html>`,
			spans:    []Span{{Index: 0, Text: "Olá mundo"}},
			expected: `<html><body><p>Olá mundo</p></body></html>`,
		},
		{
			name: "Inline tags preserved in place",
			doc:  `<p>This is <b>bold</b> text.</p>`,
			spans: []Span{
				{Index: 0, Text: "Isto é"},
				{Index: 1, Text: "negrito"},
				{Index: 2, Text: "texto."},
			},
			expected: `<p>Isto é <b>negrito</b> texto.</p>`,
		},
		{
			name:     "Whitespace framing survives",
			doc:      "<p>\n  Hello\n</p>",
			spans:    []Span{{Index: 0, Text: "Olá"}},
			expected: "<p>\n  Olá\n</p>",
		},
		{
			name:     "Attribute value spliced without touching the tag",
			doc:      `<img src="fox.png" alt="A red fox" class="pic"/>`,
			spans:    []Span{{Index: 0, Text: "Uma raposa vermelha"}},
			expected: `<img src="fox.png" alt="Uma raposa vermelha" class="pic"/>`,
		},
		{
			name:     "Markup characters in translation are escaped",
			doc:      `<p>Fish and chips</p>`,
			spans:    []Span{{Index: 0, Text: "Fish & chips <fried>"}},
			expected: `<p>Fish &amp; chips &lt;fried&gt;</p>`,
		},
		{
			name:     "Quotes in attribute translations are escaped",
			doc:      `<img alt="plain"/>`,
			spans:    []Span{{Index: 0, Text: `say "hi"`}},
			expected: `<img alt="say &quot;hi&quot;"/>`,
		},
		{
			name: "Self-closing script leaves following markup intact",
			doc:  `<p>Hi</p><script src="a.js"/><p>There</p>`,
			spans: []Span{
				{Index: 0, Text: "Oi"},
				{Index: 1, Text: "Aí"},
			},
			expected: `<p>Oi</p><script src="a.js"/><p>Aí</p>`,
		},
		{
			name:     "Spans without replacement pass through",
			doc:      `<p>One</p><p>Two</p>`,
			spans:    []Span{{Index: 1, Text: "Dois"}},
			expected: `<p>One</p><p>Dois</p>`,
		},
		{
			name: "Structure outside spans is byte-identical",
			doc: `<?xml version="1.0"?><!DOCTYPE html><html xmlns="http://www.w3.org/1999/xhtml"><head><title>T</title>` +
				`<style>body { margin: 0 }</style></head><body class="main"><!-- keep --><p id="p1">Hi</p></body></html>`,
			spans: []Span{{Index: 0, Text: "X"}, {Index: 1, Text: "Y"}},
			expected: `<?xml version="1.0"?><!DOCTYPE html><html xmlns="http://www.w3.org/1999/xhtml"><head><title>X</title>` +
				`<style>body { margin: 0 }</style></head><body class="main"><!-- keep --><p id="p1">Y</p></body></html>`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Reinsert([]byte(tc.doc), tc.spans)
			if err != nil {
				t.Fatalf("Reinsert failed: %v", err)
			}

			if string(out) != tc.expected {
				t.Errorf("Document does not match.\nExpected: %q\nGot:      %q", tc.expected, string(out))
			}
		})
	}
}

func TestReinsertWithoutSpansIsIdentity(t *testing.T) {
	docs := []string{
		`<html><body><p>Hello <em>there</em></p></body></html>`,
		"<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<html>\n  <body>\n    <p>Text &amp; more</p>\n  </body>\n</html>\n",
		`<img src="a.png" alt="fox"/><p title="note">hi</p>`,
	}

	for _, doc := range docs {
		out, err := Reinsert([]byte(doc), nil)
		if err != nil {
			t.Fatalf("Reinsert failed: %v", err)
		}
		if string(out) != doc {
			t.Errorf("Identity reinsertion changed bytes.\nBefore: %q\nAfter:  %q", doc, string(out))
		}
	}
}

func TestIsolateReinsertRoundTrip(t *testing.T) {
	doc := `<html><body><h1>Title</h1><p>First <i>span</i> here.</p><img alt="pic"/></body></html>`

	spans, err := Isolate([]byte(doc))
	if err != nil {
		t.Fatalf("Isolate failed: %v", err)
	}

	// Reinserting the original text must keep the skeleton and text aligned:
	// a second isolation sees the same spans.
	out, err := Reinsert([]byte(doc), spans)
	if err != nil {
		t.Fatalf("Reinsert failed: %v", err)
	}

	again, err := Isolate(out)
	if err != nil {
		t.Fatalf("Isolate of reinserted document failed: %v", err)
	}

	if len(again) != len(spans) {
		t.Fatalf("Span count changed after round trip: %d != %d", len(again), len(spans))
	}
	for i := range spans {
		if again[i].Text != spans[i].Text {
			t.Errorf("Span %d changed: %q != %q", i, again[i].Text, spans[i].Text)
		}
	}
}

func TestReplaceAttrValue(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		key      string
		val      string
		expected string
	}{
		{
			name:     "Double quoted",
			raw:      `<img src="a.png" alt="fox">`,
			key:      "alt",
			val:      "raposa",
			expected: `<img src="a.png" alt="raposa">`,
		},
		{
			name:     "Single quoted",
			raw:      `<img alt='fox'>`,
			key:      "alt",
			val:      "raposa",
			expected: `<img alt='raposa'>`,
		},
		{
			name:     "Key is not matched inside other values",
			raw:      `<img title="alt text here" alt="fox">`,
			key:      "alt",
			val:      "raposa",
			expected: `<img title="alt text here" alt="raposa">`,
		},
		{
			name:     "Unquoted values are left alone",
			raw:      `<img alt=fox>`,
			key:      "alt",
			val:      "raposa",
			expected: `<img alt=fox>`,
		},
		{
			name:     "Missing attribute leaves tag untouched",
			raw:      `<img src="a.png">`,
			key:      "alt",
			val:      "raposa",
			expected: `<img src="a.png">`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := replaceAttrValue([]byte(tc.raw), tc.key, tc.val)
			if string(out) != tc.expected {
				t.Errorf("Tag does not match.\nExpected: %q\nGot:      %q", tc.expected, string(out))
			}
		})
	}
}
