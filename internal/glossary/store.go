package glossary

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/common/logger"
)

// Store is a file-per-domain JSON glossary. Writes are serialized by a
// mutex and preceded by a timestamped backup of the current file; reads are
// unlocked and tolerate concurrent writes (last write wins at file level).
type Store struct {
	dir string
	log *logger.Logger
	mu  sync.Mutex
}

// NewStore creates a glossary store rooted at dir. The directory is created
// lazily on the first write.
func NewStore(dir string, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Default()
	}
	return &Store{
		dir: dir,
		log: log.WithFields(zap.String("component", "glossary_store")),
	}
}

// Dir returns the store root.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) domainPath(domain string) string {
	return filepath.Join(s.dir, domain+".json")
}

// Load returns the entries for one domain. A missing file yields an empty
// list; a corrupted file yields an empty list and a warning.
func (s *Store) Load(domain string) ([]Entry, error) {
	domain = NormalizeDomain(domain)
	data, err := os.ReadFile(s.domainPath(domain))
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("read glossary %s: %w", domain, err)
	}

	var doc domainFile
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Warn("glossary file is corrupted, starting empty",
			zap.String("domain", domain),
			zap.Error(err),
		)
		return []Entry{}, nil
	}
	if doc.Entries == nil {
		doc.Entries = []Entry{}
	}
	return doc.Entries, nil
}

// Merge folds candidates into the domain glossary. Existing translations
// win: a candidate that would change one is reported as a conflict and the
// stored entry stays verbatim. New terms are stamped with the domain and
// appended. The file is written (with backup) only when entries were added.
func (s *Store) Merge(domain string, candidates []Entry) ([]Entry, []Conflict, error) {
	domain = NormalizeDomain(domain)
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.Load(domain)
	if err != nil {
		return nil, nil, err
	}

	byKey := make(map[string]int, len(entries))
	for i, e := range entries {
		byKey[strings.ToLower(e.English)] = i
	}

	conflicts := []Conflict{}
	added := 0
	for _, cand := range candidates {
		cand.English = strings.TrimSpace(cand.English)
		key := strings.ToLower(cand.English)
		if key == "" {
			continue
		}
		if i, ok := byKey[key]; ok {
			if cand.Chinese != "" && cand.Chinese != entries[i].Chinese {
				conflicts = append(conflicts, Conflict{
					English:  entries[i].English,
					Existing: entries[i].Chinese,
					Incoming: cand.Chinese,
				})
			}
			continue
		}
		cand.Domain = domain
		if cand.UpdatedAt == "" {
			cand.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
		}
		entries = append(entries, cand)
		byKey[key] = len(entries) - 1
		added++
	}

	if added > 0 {
		if err := s.saveLocked(domain, entries); err != nil {
			return nil, nil, err
		}
		s.log.Debug("glossary merged",
			zap.String("domain", domain),
			zap.Int("added", added),
			zap.Int("conflicts", len(conflicts)),
		)
	}
	return entries, conflicts, nil
}

// Upsert writes one entry, preserving the stored English casing when the
// term already exists.
func (s *Store) Upsert(domain string, entry Entry) error {
	domain = NormalizeDomain(domain)
	entry.English = strings.TrimSpace(entry.English)
	if entry.English == "" {
		return errors.New("glossary entry has no english term")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.Load(domain)
	if err != nil {
		return err
	}

	entry.Domain = domain
	entry.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if entry.Source == "" {
		entry.Source = SourceManual
	}

	key := strings.ToLower(entry.English)
	replaced := false
	for i := range entries {
		if strings.ToLower(entries[i].English) == key {
			entry.English = entries[i].English
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	return s.saveLocked(domain, entries)
}

// Domains lists the stored glossary domains, excluding backup files.
func (s *Store) Domains() ([]string, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read glossary dir: %w", err)
	}

	domains := make([]string, 0, len(dirents))
	for _, de := range dirents {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".json") || strings.Contains(name, ".bak") {
			continue
		}
		domains = append(domains, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(domains)
	return domains, nil
}

// Search returns entries whose English or Chinese side contains query,
// case-insensitively. An empty domain searches every domain; an empty query
// matches everything.
func (s *Store) Search(query, domain string) ([]Entry, error) {
	var domains []string
	if domain != "" {
		domains = []string{NormalizeDomain(domain)}
	} else {
		all, err := s.Domains()
		if err != nil {
			return nil, err
		}
		domains = all
	}

	q := strings.ToLower(strings.TrimSpace(query))
	matched := []Entry{}
	for _, d := range domains {
		entries, err := s.Load(d)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if q == "" ||
				strings.Contains(strings.ToLower(e.English), q) ||
				strings.Contains(strings.ToLower(e.Chinese), q) {
				matched = append(matched, e)
			}
		}
	}
	return matched, nil
}

// saveLocked backs up the current file and writes the new state. Called
// with the write lock held.
func (s *Store) saveLocked(domain string, entries []Entry) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create glossary dir: %w", err)
	}
	if err := s.backupLocked(domain); err != nil {
		return err
	}

	doc := domainFile{
		Domain:    domain,
		Entries:   entries,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode glossary %s: %w", domain, err)
	}
	if err := os.WriteFile(s.domainPath(domain), data, 0o644); err != nil {
		return fmt.Errorf("write glossary %s: %w", domain, err)
	}
	return nil
}

// backupLocked copies the current domain file to {domain}.{ts}.bak.json.
// A missing file (first write) needs no backup.
func (s *Store) backupLocked(domain string) error {
	data, err := os.ReadFile(s.domainPath(domain))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read glossary %s for backup: %w", domain, err)
	}

	stamp := time.Now().Format("20060102150405")
	backup := filepath.Join(s.dir, fmt.Sprintf("%s.%s.bak.json", domain, stamp))
	if err := os.WriteFile(backup, data, 0o644); err != nil {
		return fmt.Errorf("write glossary backup %s: %w", domain, err)
	}
	return nil
}
