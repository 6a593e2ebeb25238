package track

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Status of a single entry within a tracked run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusTranslated Status = "translated"
)

// Record is the persisted progress for one archive identity. It is stored as
// indented JSON so operators can audit or manually reset progress.
type Record struct {
	ArchiveID  string            `json:"archive_id"`
	SourceLang string            `json:"source_lang"`
	TargetLang string            `json:"target_lang"`
	Entries    map[string]Status `json:"entries"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func NewRecord(archiveID, sourceLang, targetLang string) *Record {
	return &Record{
		ArchiveID:  archiveID,
		SourceLang: sourceLang,
		TargetLang: targetLang,
		Entries:    make(map[string]Status),
	}
}

// Matches reports whether the record was produced with the given language
// pair. A record for a different pair is stale and must not be trusted for
// skipping.
func (r *Record) Matches(sourceLang, targetLang string) bool {
	return r.SourceLang == sourceLang && r.TargetLang == targetLang
}

// MarkTranslated transitions an entry to translated. Marking an
// already-translated entry is a no-op.
func (r *Record) MarkTranslated(entryName string) {
	if r.Entries[entryName] == StatusTranslated {
		return
	}
	r.Entries[entryName] = StatusTranslated
}

// IsDone reports whether an entry has already been translated.
func (r *Record) IsDone(entryName string) bool {
	return r.Entries[entryName] == StatusTranslated
}

// CorruptError reports a tracking record that exists but cannot be parsed.
// The flow must treat the archive as having no resumable progress.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("tracking record %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Tracker persists progress records and staged translated entries under a
// state directory, keyed by archive identity.
type Tracker struct {
	dir    string
	logger *logrus.Logger
}

func NewTracker(dir string, logger *logrus.Logger) *Tracker {
	return &Tracker{
		dir:    dir,
		logger: logger,
	}
}

func (t *Tracker) recordPath(archiveID string) string {
	return filepath.Join(t.dir, archiveID+".json")
}

func (t *Tracker) stagingDir(archiveID string) string {
	return filepath.Join(t.dir, archiveID+".staging")
}

// Load returns the record for an archive identity, or nil when none exists.
func (t *Tracker) Load(archiveID string) (*Record, error) {
	path := t.recordPath(archiveID)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	if record.Entries == nil {
		record.Entries = make(map[string]Status)
	}

	t.logger.Debugf("Loaded tracking record %s (%d entries)", path, len(record.Entries))
	return &record, nil
}

// Persist writes the record durably before the flow proceeds to the next
// entry. The file is staged and renamed so a crash mid-write never leaves a
// half-written record behind.
func (t *Tracker) Persist(record *Record) error {
	if err := os.MkdirAll(t.dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	record.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tracking record: %w", err)
	}

	path := t.recordPath(record.ArchiveID)
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write tracking record: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to commit tracking record: %w", err)
	}

	return nil
}

// StageEntry stores a translated entry's content so a later run can resume
// without re-translating. It must be called before the entry is marked
// translated: a marked entry without staged content is treated as not done.
func (t *Tracker) StageEntry(archiveID, entryName string, data []byte) error {
	path := filepath.Join(t.stagingDir(archiveID), filepath.FromSlash(entryName))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to stage entry %s: %w", entryName, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to commit staged entry %s: %w", entryName, err)
	}

	return nil
}

// StagedEntry reads back a previously staged translated entry.
func (t *Tracker) StagedEntry(archiveID, entryName string) ([]byte, error) {
	path := filepath.Join(t.stagingDir(archiveID), filepath.FromSlash(entryName))
	return os.ReadFile(path)
}

// HasStagedEntry reports whether staged content exists for an entry.
func (t *Tracker) HasStagedEntry(archiveID, entryName string) bool {
	path := filepath.Join(t.stagingDir(archiveID), filepath.FromSlash(entryName))
	_, err := os.Stat(path)
	return err == nil
}

// Remove deletes the tracking record and staged content for an archive.
// Progress is never removed automatically; this is for explicit resets.
func (t *Tracker) Remove(archiveID string) error {
	if err := os.Remove(t.recordPath(archiveID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.RemoveAll(t.stagingDir(archiveID))
}
