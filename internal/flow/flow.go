package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/drakeshin/EPUB-AI-Translator/internal/archive"
	"github.com/drakeshin/EPUB-AI-Translator/internal/classify"
	"github.com/drakeshin/EPUB-AI-Translator/internal/markup"
	"github.com/drakeshin/EPUB-AI-Translator/internal/track"
	"github.com/drakeshin/EPUB-AI-Translator/internal/translate"
)

// State of a translation run. A run moves Init -> Enumerating -> Processing
// -> Packaging -> Done, with Failed reachable from any state.
type State string

const (
	StateInit        State = "init"
	StateEnumerating State = "enumerating"
	StateProcessing  State = "processing"
	StatePackaging   State = "packaging"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Options are the validated parameters handed in by the CLI layer.
type Options struct {
	InputPath       string
	OutputPath      string
	SourceLang      string // "auto" enables offline detection
	TargetLang      string
	TrackingEnabled bool
	ContinueOnError bool
}

// Report summarizes a completed run.
type Report struct {
	RunID      string
	SourceLang string
	TargetLang string
	OutputPath string
	Translated []string          // entries translated during this run
	Reused     []string          // entries resumed from a previous run
	Skipped    map[string]string // entry name -> reason, continue-on-error only
	Structural int
}

// Progress is a point-in-time snapshot for the status server.
type Progress struct {
	RunID        string    `json:"run_id"`
	State        State     `json:"state"`
	InputPath    string    `json:"input_path"`
	SourceLang   string    `json:"source_lang"`
	TargetLang   string    `json:"target_lang"`
	TotalEntries int       `json:"total_entries"`
	Translatable int       `json:"translatable_entries"`
	Completed    int       `json:"completed_entries"`
	CurrentEntry string    `json:"current_entry"`
	StartedAt    time.Time `json:"started_at"`
	Error        string    `json:"error,omitempty"`
}

// Flow drives one archive through extraction, translation, and packaging.
// Processing is strictly sequential per entry so persisted progress always
// matches completed work.
type Flow struct {
	store      *archive.Store
	classifier *classify.Classifier
	tracker    *track.Tracker
	port       translate.Port
	credential *translate.Credential
	logger     *logrus.Logger
	hub        translate.Broadcaster
	opts       Options

	mu       sync.RWMutex
	progress Progress
}

func New(store *archive.Store, classifier *classify.Classifier, tracker *track.Tracker, port translate.Port, credential *translate.Credential, logger *logrus.Logger, opts Options) *Flow {
	return &Flow{
		store:      store,
		classifier: classifier,
		tracker:    tracker,
		port:       port,
		credential: credential,
		logger:     logger,
		opts:       opts,
		progress: Progress{
			RunID:      uuid.New().String(),
			State:      StateInit,
			InputPath:  opts.InputPath,
			SourceLang: opts.SourceLang,
			TargetLang: opts.TargetLang,
		},
	}
}

// SetBroadcaster enables progress event streaming.
func (f *Flow) SetBroadcaster(hub translate.Broadcaster) {
	f.hub = hub
}

// Snapshot returns the current progress.
func (f *Flow) Snapshot() Progress {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.progress
}

// Run executes the full pipeline. The credential is scrubbed on every exit
// path, including failures during translation or packaging.
func (f *Flow) Run(ctx context.Context) (*Report, error) {
	if f.credential != nil {
		defer f.credential.Scrub()
	}

	report, err := f.run(ctx)
	if err != nil {
		f.fail(err)
		return report, err
	}

	f.setState(StateDone)
	if f.hub != nil {
		f.hub.BroadcastMessage("translation_complete", f.Snapshot())
	}
	return report, nil
}

func (f *Flow) run(ctx context.Context) (*Report, error) {
	f.update(func(p *Progress) {
		p.State = StateInit
		p.StartedAt = time.Now()
	})

	input, err := f.store.Open(f.opts.InputPath)
	if err != nil {
		return nil, err
	}
	archiveID := input.Identity()

	f.setState(StateEnumerating)
	entries := input.Entries()

	classes := make(map[string]classify.Class, len(entries))
	translatable := 0
	for _, entry := range entries {
		classes[entry.Name] = f.classifier.Classify(entry)
		if classes[entry.Name] == classify.Translatable {
			translatable++
		}
	}

	sourceLang, err := f.resolveSourceLanguage(entries, classes)
	if err != nil {
		return nil, err
	}

	record, err := f.loadRecord(archiveID, sourceLang)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:      f.progress.RunID,
		SourceLang: sourceLang,
		TargetLang: f.opts.TargetLang,
		OutputPath: f.opts.OutputPath,
		Skipped:    make(map[string]string),
	}

	f.update(func(p *Progress) {
		p.State = StateProcessing
		p.SourceLang = sourceLang
		p.TotalEntries = len(entries)
		p.Translatable = translatable
	})

	// Translated content for this run; resumed entries are read back from
	// the tracker's staging area at packaging time.
	translated := make(map[string][]byte)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if classes[entry.Name] == classify.Structural {
			report.Structural++
			continue
		}

		f.update(func(p *Progress) {
			p.CurrentEntry = entry.Name
		})
		f.broadcastProgress(entry.Name)

		if record != nil && record.IsDone(entry.Name) && f.tracker.HasStagedEntry(archiveID, entry.Name) {
			f.logger.Infof("Entry already translated, skipping: %s", entry.Name)
			report.Reused = append(report.Reused, entry.Name)
			f.update(func(p *Progress) { p.Completed++ })
			continue
		}

		result, err := f.translateEntry(ctx, entry, sourceLang)
		if err != nil {
			if f.opts.ContinueOnError && isTranslationFailure(err) {
				f.logger.Warnf("Skipping entry %s: %v", entry.Name, err)
				report.Skipped[entry.Name] = err.Error()
				if f.hub != nil {
					f.hub.BroadcastLog("warn", fmt.Sprintf("Skipped entry %s: %v", entry.Name, err), "flow")
				}
				continue
			}
			return report, fmt.Errorf("entry %s: %w", entry.Name, err)
		}

		translated[entry.Name] = result

		if record != nil {
			if err := f.tracker.StageEntry(archiveID, entry.Name, result); err != nil {
				return report, err
			}
			record.MarkTranslated(entry.Name)
			if err := f.tracker.Persist(record); err != nil {
				return report, err
			}
		}

		report.Translated = append(report.Translated, entry.Name)
		f.update(func(p *Progress) { p.Completed++ })
		f.logger.Debugf("Completed entry %d/%d: %s", len(report.Translated)+len(report.Reused), translatable, entry.Name)
	}

	f.setState(StatePackaging)
	f.broadcastProgress("")

	output := make([]archive.Entry, 0, len(entries))
	for _, entry := range entries {
		if data, ok := translated[entry.Name]; ok {
			output = append(output, archive.Entry{Name: entry.Name, Data: data})
			continue
		}
		if record != nil && record.IsDone(entry.Name) && classes[entry.Name] == classify.Translatable {
			data, err := f.tracker.StagedEntry(archiveID, entry.Name)
			if err != nil {
				return report, fmt.Errorf("staged content for %s is missing: %w", entry.Name, err)
			}
			output = append(output, archive.Entry{Name: entry.Name, Data: data})
			continue
		}
		output = append(output, entry)
	}

	if err := f.verifyComplete(record, classes, report); err != nil {
		return report, err
	}

	if err := f.store.Write(f.opts.OutputPath, output); err != nil {
		return report, err
	}

	return report, nil
}

// translateEntry isolates the entry's text spans, translates each, and
// reinserts. No partial in-entry translation is ever committed: any span
// failure fails the whole entry.
func (f *Flow) translateEntry(ctx context.Context, entry archive.Entry, sourceLang string) ([]byte, error) {
	spans, err := markup.Isolate(entry.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to isolate text: %w", err)
	}

	if len(spans) == 0 {
		return entry.Data, nil
	}

	f.logger.Debugf("Translating %d spans in %s (%s)", len(spans), entry.Name, classify.DocumentTitle(entry.Data))

	translated := make([]markup.Span, 0, len(spans))
	for _, span := range spans {
		text, err := f.port.Translate(ctx, span.Text, sourceLang, f.opts.TargetLang)
		if err != nil {
			return nil, err
		}
		translated = append(translated, markup.Span{Index: span.Index, Text: text})
	}

	return markup.Reinsert(entry.Data, translated)
}

// resolveSourceLanguage samples plain text from the first translatable
// entries when the caller asked for auto-detection.
func (f *Flow) resolveSourceLanguage(entries []archive.Entry, classes map[string]classify.Class) (string, error) {
	if f.opts.SourceLang != "auto" {
		return f.opts.SourceLang, nil
	}

	var samples []string
	for _, entry := range entries {
		if classes[entry.Name] != classify.Translatable {
			continue
		}
		text := classify.PlainText(entry.Data)
		if len(text) > 500 {
			text = text[:500]
		}
		samples = append(samples, text)
		if len(samples) >= 3 {
			break
		}
	}

	lang, err := translate.DetectSourceLanguage(samples)
	if err != nil {
		return "", fmt.Errorf("failed to detect source language: %w", err)
	}

	f.logger.Infof("Detected source language: %s", lang)
	return lang, nil
}

// loadRecord loads or initializes the progress record. A corrupt record is
// recovered by starting from scratch; a record for another language pair is
// stale and ignored.
func (f *Flow) loadRecord(archiveID, sourceLang string) (*track.Record, error) {
	if !f.opts.TrackingEnabled {
		return nil, nil
	}

	record, err := f.tracker.Load(archiveID)
	var corrupt *track.CorruptError
	if errors.As(err, &corrupt) {
		f.logger.Warnf("Tracking record is corrupt, starting from scratch: %v", err)
		record = nil
	} else if err != nil {
		return nil, err
	}

	if record != nil && !record.Matches(sourceLang, f.opts.TargetLang) {
		f.logger.Warnf("Tracking record language pair %s->%s does not match requested %s->%s, ignoring it",
			record.SourceLang, record.TargetLang, sourceLang, f.opts.TargetLang)
		record = nil
	}

	if record == nil {
		record = track.NewRecord(archiveID, sourceLang, f.opts.TargetLang)
	}
	return record, nil
}

// verifyComplete gates packaging: every translatable entry must be
// translated, resumed, or explicitly skipped by policy.
func (f *Flow) verifyComplete(record *track.Record, classes map[string]classify.Class, report *Report) error {
	done := make(map[string]bool, len(report.Translated)+len(report.Reused))
	for _, name := range report.Translated {
		done[name] = true
	}
	for _, name := range report.Reused {
		done[name] = true
	}

	for name, class := range classes {
		if class != classify.Translatable {
			continue
		}
		if done[name] {
			continue
		}
		if _, skipped := report.Skipped[name]; skipped {
			continue
		}
		if record != nil && record.IsDone(name) {
			continue
		}
		return fmt.Errorf("entry %s was never processed, refusing to package", name)
	}
	return nil
}

func isTranslationFailure(err error) bool {
	var terr *translate.Error
	return errors.As(err, &terr)
}

func (f *Flow) setState(state State) {
	f.update(func(p *Progress) {
		p.State = state
	})
}

func (f *Flow) fail(err error) {
	f.update(func(p *Progress) {
		p.State = StateFailed
		p.Error = err.Error()
	})
	if f.hub != nil {
		f.hub.BroadcastMessage("translation_error", map[string]interface{}{
			"run_id": f.progress.RunID,
			"error":  err.Error(),
		})
	}
}

func (f *Flow) update(fn func(*Progress)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.progress)
}

func (f *Flow) broadcastProgress(current string) {
	if f.hub == nil {
		return
	}

	snapshot := f.Snapshot()
	f.hub.BroadcastMessage("translation_progress", snapshot)
	if current != "" {
		f.hub.BroadcastLog("info", fmt.Sprintf("Translating entry: %s (%d/%d)",
			current, snapshot.Completed+1, snapshot.Translatable), "flow")
	}
}
