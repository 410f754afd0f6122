// Package transtore persists finished translations on disk: an index.json
// listing every translation newest first, plus one directory per id holding
// the translated Markdown, the raw OCR output when the OCR pipeline ran,
// extracted images, metadata and the quality report.
package transtore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/agent"
	"github.com/papertrans/papertrans/internal/common/logger"
)

const indexName = "index.json"

// ErrNotFound is returned when a translation id is unknown or the requested
// artifact was never written for it.
var ErrNotFound = errors.New("translation not found")

// Ids become directory names, so anything that could escape the store root
// is rejected outright.
var idRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Meta describes one stored translation. It is both the meta.json payload
// and the index entry shape.
type Meta struct {
	ID          string               `json:"id"`
	Filename    string               `json:"filename"`
	DisplayName string               `json:"display_name"`
	CreatedAt   string               `json:"created_at"`
	HasOCR      bool                 `json:"has_ocr"`
	Provider    string               `json:"provider,omitempty"`
	Model       string               `json:"model,omitempty"`
	Profile     *agent.PromptProfile `json:"prompt_profile,omitempty"`
}

// Record carries everything Save persists for one finished translation.
type Record struct {
	ID            string
	Filename      string
	TranslatedMD  string
	OCRMarkdown   string
	Images        map[string][]byte
	QualityReport *agent.QualityReport
	Provider      string
	Model         string
	Profile       *agent.PromptProfile
}

type indexFile struct {
	Entries []Meta `json:"entries"`
}

// Store is a directory-backed translation archive. Writes are serialized by
// a mutex; reads are unlocked and tolerate concurrent writes.
type Store struct {
	dir string
	log *logger.Logger
	mu  sync.Mutex
}

// NewStore creates a translation store rooted at dir. The directory is
// created lazily on the first save.
func NewStore(dir string, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Default()
	}
	return &Store{
		dir: dir,
		log: log.WithFields(zap.String("component", "translation_store")),
	}
}

// Dir returns the store root.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes every artifact of one translation and registers it in the
// index. Image names are normalized to fig_N with jpeg collapsed to jpg,
// and Markdown references are rewritten to match the stored layout.
// Saving an existing id replaces its artifacts and moves it to the front
// of the index.
func (s *Store) Save(rec *Record) (*Meta, error) {
	if rec == nil || rec.ID == "" {
		return nil, errors.New("translation record requires an id")
	}
	if !idRe.MatchString(rec.ID) {
		return nil, fmt.Errorf("invalid translation id %q", rec.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	meta := &Meta{
		ID:          rec.ID,
		Filename:    rec.Filename,
		DisplayName: uniqueDisplayName(idx, rec.ID, rec.Filename),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		HasOCR:      rec.OCRMarkdown != "",
		Provider:    rec.Provider,
		Model:       rec.Model,
		Profile:     rec.Profile,
	}

	dir := filepath.Join(s.dir, rec.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create translation dir: %w", err)
	}

	files, renames := normalizeImages(rec.Images)

	translated := rewriteImageRefs(rec.TranslatedMD, renames)
	if err := os.WriteFile(filepath.Join(dir, "translated.md"), []byte(translated), 0o644); err != nil {
		return nil, fmt.Errorf("write translated markdown: %w", err)
	}
	if rec.OCRMarkdown != "" {
		raw := rewriteImageRefs(rec.OCRMarkdown, renames)
		if err := os.WriteFile(filepath.Join(dir, "ocr_raw.md"), []byte(raw), 0o644); err != nil {
			return nil, fmt.Errorf("write ocr markdown: %w", err)
		}
	}

	if len(files) > 0 {
		imgDir := filepath.Join(dir, "images")
		if err := os.MkdirAll(imgDir, 0o755); err != nil {
			return nil, fmt.Errorf("create images dir: %w", err)
		}
		for name, data := range files {
			if err := os.WriteFile(filepath.Join(imgDir, name), data, 0o644); err != nil {
				return nil, fmt.Errorf("write image %s: %w", name, err)
			}
		}
	}

	if rec.QualityReport != nil {
		data, err := rec.QualityReport.JSON()
		if err != nil {
			return nil, fmt.Errorf("encode quality report: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "quality_report.json"), data, 0o644); err != nil {
			return nil, fmt.Errorf("write quality report: %w", err)
		}
	}

	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode translation meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), metaData, 0o644); err != nil {
		return nil, fmt.Errorf("write translation meta: %w", err)
	}

	entries := make([]Meta, 0, len(idx.Entries)+1)
	entries = append(entries, *meta)
	for _, e := range idx.Entries {
		if e.ID != rec.ID {
			entries = append(entries, e)
		}
	}
	if err := s.saveIndexLocked(indexFile{Entries: entries}); err != nil {
		return nil, err
	}

	s.log.Info("translation saved",
		zap.String("translation_id", rec.ID),
		zap.String("display_name", meta.DisplayName),
		zap.Int("images", len(files)),
		zap.Bool("has_ocr", meta.HasOCR),
	)
	return meta, nil
}

// List returns the stored translations, newest first.
func (s *Store) List() ([]Meta, error) {
	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	if idx.Entries == nil {
		return []Meta{}, nil
	}
	return idx.Entries, nil
}

// Get returns the metadata of one translation.
func (s *Store) Get(id string) (*Meta, error) {
	data, err := s.readEntryFile(id, "meta.json")
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode translation meta: %w", err)
	}
	return &meta, nil
}

// ReadMarkdown returns the stored translated document.
func (s *Store) ReadMarkdown(id string) (string, error) {
	data, err := s.readEntryFile(id, "translated.md")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadQualityReport returns the stored quality report. ErrNotFound covers
// both an unknown id and a translation saved without a report.
func (s *Store) ReadQualityReport(id string) (*agent.QualityReport, error) {
	data, err := s.readEntryFile(id, "quality_report.json")
	if err != nil {
		return nil, err
	}
	report, err := agent.ParseQualityReport(data)
	if err != nil {
		return nil, fmt.Errorf("decode quality report: %w", err)
	}
	return report, nil
}

func (s *Store) readEntryFile(id, name string) ([]byte, error) {
	if !idRe.MatchString(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, id, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("read translation %s: %w", name, err)
	}
	return data, nil
}

// loadIndex reads index.json. A missing file yields an empty index; a
// corrupted one yields an empty index and a warning.
func (s *Store) loadIndex() (indexFile, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, indexName))
	if err != nil {
		if os.IsNotExist(err) {
			return indexFile{}, nil
		}
		return indexFile{}, fmt.Errorf("read translation index: %w", err)
	}
	var idx indexFile
	if err := json.Unmarshal(data, &idx); err != nil {
		s.log.Warn("translation index is corrupted, starting empty", zap.Error(err))
		return indexFile{}, nil
	}
	return idx, nil
}

func (s *Store) saveIndexLocked(idx indexFile) error {
	data, err := json.MarshalIndent(&idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode translation index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, indexName), data, 0o644); err != nil {
		return fmt.Errorf("write translation index: %w", err)
	}
	return nil
}

// uniqueDisplayName derives a display name from the upload's filename stem,
// appending -2, -3, ... while another translation already uses it.
func uniqueDisplayName(idx indexFile, id, filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	stem = strings.TrimSpace(stem)
	if stem == "" || stem == "." {
		stem = id
	}

	taken := make(map[string]bool, len(idx.Entries))
	for _, e := range idx.Entries {
		if e.ID != id {
			taken[e.DisplayName] = true
		}
	}

	name := stem
	for n := 2; taken[name]; n++ {
		name = fmt.Sprintf("%s-%d", stem, n)
	}
	return name
}
