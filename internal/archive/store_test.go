package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func writeTestEPUB(t *testing.T, path string, entries []Entry) {
	t.Helper()

	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)
	for _, entry := range entries {
		method := zip.Deflate
		if entry.Name == "mimetype" {
			method = zip.Store
		}
		w, err := zipWriter.CreateHeader(&zip.FileHeader{Name: entry.Name, Method: method})
		if err != nil {
			t.Fatalf("Failed to create zip entry: %v", err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			t.Fatalf("Failed to write zip entry: %v", err)
		}
	}
	if err := zipWriter.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func sampleEntries() []Entry {
	return []Entry{
		{Name: "mimetype", Data: []byte("application/epub+zip")},
		{Name: "META-INF/container.xml", Data: []byte(`<?xml version="1.0"?><container/>`)},
		{Name: "OEBPS/ch1.xhtml", Data: []byte("<html><body><p>One</p></body></html>")},
		{Name: "OEBPS/style.css", Data: []byte("body { margin: 0 }")},
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.epub")
	entries := sampleEntries()
	writeTestEPUB(t, path, entries)

	store := NewStore(testLogger())
	archive, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if len(archive.Entries()) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(archive.Entries()))
	}

	for i, entry := range archive.Entries() {
		if entry.Name != entries[i].Name {
			t.Errorf("Entry %d: expected name %q, got %q", i, entries[i].Name, entry.Name)
		}
		if !bytes.Equal(entry.Data, entries[i].Data) {
			t.Errorf("Entry %d: content mismatch", i)
		}
	}

	if archive.Identity() == "" {
		t.Error("Expected non-empty identity")
	}
	if len(archive.Identity()) != 64 {
		t.Errorf("Expected sha256 hex identity, got %q", archive.Identity())
	}
}

func TestOpenIdentityTracksContent(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(testLogger())

	pathA := filepath.Join(dir, "a.epub")
	pathB := filepath.Join(dir, "b.epub")
	writeTestEPUB(t, pathA, sampleEntries())

	// Byte-identical copy under a different name shares the identity.
	data, err := os.ReadFile(pathA)
	if err != nil {
		t.Fatalf("Failed to read test file: %v", err)
	}
	if err := os.WriteFile(pathB, data, 0644); err != nil {
		t.Fatalf("Failed to copy test file: %v", err)
	}

	a, err := store.Open(pathA)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	b, err := store.Open(pathB)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if a.Identity() != b.Identity() {
		t.Error("Identical content produced different identities")
	}

	// Different content produces a different identity.
	pathC := filepath.Join(dir, "c.epub")
	altered := sampleEntries()
	altered[2].Data = []byte("<html><body><p>Changed</p></body></html>")
	writeTestEPUB(t, pathC, altered)

	c, err := store.Open(pathC)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if a.Identity() == c.Identity() {
		t.Error("Different content produced the same identity")
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(testLogger())

	_, err := store.Open(filepath.Join(dir, "missing.epub"))
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
	var readErr *ReadError
	if !errors.As(err, &readErr) {
		t.Errorf("Expected ReadError, got %T", err)
	}

	badPath := filepath.Join(dir, "bad.epub")
	if err := os.WriteFile(badPath, []byte("not a zip archive"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	_, err = store.Open(badPath)
	if err == nil {
		t.Fatal("Expected error for non-zip file")
	}
	if !errors.As(err, &readErr) {
		t.Errorf("Expected ReadError, got %T", err)
	}
}

func TestEntryLookup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.epub")
	writeTestEPUB(t, path, sampleEntries())

	store := NewStore(testLogger())
	archive, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	entry, ok := archive.Entry("OEBPS/ch1.xhtml")
	if !ok {
		t.Fatal("Expected to find OEBPS/ch1.xhtml")
	}
	if string(entry.Data) != "<html><body><p>One</p></body></html>" {
		t.Errorf("Unexpected content: %q", string(entry.Data))
	}

	if _, ok := archive.Entry("OEBPS/missing.xhtml"); ok {
		t.Error("Expected lookup miss for unknown entry")
	}
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.epub")
	entries := sampleEntries()

	store := NewStore(testLogger())
	if err := store.Write(path, entries); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Round trip through Open: same names, same content, same order.
	archive, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open of written archive failed: %v", err)
	}
	if len(archive.Entries()) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(archive.Entries()))
	}
	for i, entry := range archive.Entries() {
		if entry.Name != entries[i].Name {
			t.Errorf("Entry %d: expected name %q, got %q", i, entries[i].Name, entry.Name)
		}
		if !bytes.Equal(entry.Data, entries[i].Data) {
			t.Errorf("Entry %d: content mismatch", i)
		}
	}

	// No staging leftovers in the destination directory.
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("Expected only the output file, found %d files", len(files))
	}
}

func TestWriteMimetypeFirstAndStored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.epub")

	// Entries deliberately listed with mimetype last.
	entries := []Entry{
		{Name: "OEBPS/ch1.xhtml", Data: []byte("<html/>")},
		{Name: "mimetype", Data: []byte("application/epub+zip")},
	}

	store := NewStore(testLogger())
	if err := store.Write(path, entries); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	reader, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("Failed to open written archive: %v", err)
	}
	defer func() { _ = reader.Close() }()

	if len(reader.File) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(reader.File))
	}
	first := reader.File[0]
	if first.Name != "mimetype" {
		t.Errorf("Expected mimetype first, got %q", first.Name)
	}
	if first.Method != zip.Store {
		t.Errorf("Expected mimetype stored uncompressed, got method %d", first.Method)
	}
}

func TestWriteErrorLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "no-such-dir", "out.epub")

	store := NewStore(testLogger())
	err := store.Write(path, sampleEntries())
	if err == nil {
		t.Fatal("Expected error for unwritable destination")
	}
	var writeErr *WriteError
	if !errors.As(err, &writeErr) {
		t.Errorf("Expected WriteError, got %T", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("Expected no file at destination after failed write")
	}
}
