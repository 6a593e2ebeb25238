package archive

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Entry is one named file inside the EPUB container. Entries are immutable
// once read; a translated entry is a new Entry value.
type Entry struct {
	Name string
	Data []byte
}

// Archive is an EPUB container opened read-only. Its identity is the sha256
// of the full file content, so byte-identical inputs share a tracking key
// regardless of path.
type Archive struct {
	Path     string
	identity string
	entries  []Entry
}

// Identity returns the sha256 hex digest of the archive bytes.
func (a *Archive) Identity() string {
	return a.identity
}

// Entries returns the archive's entries in directory order.
func (a *Archive) Entries() []Entry {
	return a.entries
}

// Entry looks up an entry by name.
func (a *Archive) Entry(name string) (Entry, bool) {
	for _, e := range a.entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// ReadError reports an unreadable or invalid input container.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read archive %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError reports a failure to commit the output container.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write archive %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

type Store struct {
	logger *logrus.Logger
}

func NewStore(logger *logrus.Logger) *Store {
	return &Store{
		logger: logger,
	}
}

// Open reads the whole container into memory, preserving directory order.
func (s *Store) Open(path string) (*Archive, error) {
	s.logger.Debugf("Opening archive: %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}

	sum := sha256.Sum256(data)

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}

	archive := &Archive{
		Path:     path,
		identity: hex.EncodeToString(sum[:]),
	}

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}

		content, err := readZipFile(file)
		if err != nil {
			return nil, &ReadError{Path: path, Err: fmt.Errorf("entry %s: %w", file.Name, err)}
		}

		archive.entries = append(archive.entries, Entry{Name: file.Name, Data: content})
	}

	s.logger.Debugf("Opened archive with %d entries, identity %s", len(archive.entries), archive.identity[:12])
	return archive, nil
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	return io.ReadAll(rc)
}

// Write assembles a new container from the given entries. The file is staged
// in the destination directory and renamed into place, so an interrupted
// write never leaves a partial archive at path. The mimetype entry is written
// first and uncompressed as the EPUB container format requires.
func (s *Store) Write(path string, entries []Entry) error {
	s.logger.Debugf("Writing archive: %s (%d entries)", path, len(entries))

	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".epub-staging-*")
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	tmpPath := tmpFile.Name()

	if err := writeZip(tmpFile, entries); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return &WriteError{Path: path, Err: err}
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return &WriteError{Path: path, Err: err}
	}

	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return &WriteError{Path: path, Err: err}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return &WriteError{Path: path, Err: err}
	}

	s.logger.Infof("Created archive: %s", path)
	return nil
}

func writeZip(w io.Writer, entries []Entry) error {
	zipWriter := zip.NewWriter(w)

	for _, entry := range entries {
		if entry.Name != "mimetype" {
			continue
		}
		writer, err := zipWriter.CreateHeader(&zip.FileHeader{
			Name:   "mimetype",
			Method: zip.Store,
		})
		if err != nil {
			return err
		}
		if _, err := writer.Write(entry.Data); err != nil {
			return err
		}
	}

	for _, entry := range entries {
		if entry.Name == "mimetype" {
			continue
		}
		writer, err := zipWriter.Create(entry.Name)
		if err != nil {
			return err
		}
		if _, err := writer.Write(entry.Data); err != nil {
			return err
		}
	}

	return zipWriter.Close()
}
