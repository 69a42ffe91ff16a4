package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/engramhq/engram/pkg/logging"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("memory")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		debugLog.Warnf("Failed to initialize memory logger, using stderr fallback: %v", err)
	}
}

// Store is a single (persona, tier) collection of entries persisted as a
// JSONL file, one entry per line.
//
// Search is deliberately not read-only: every returned entry is touched,
// because retrieval usefulness is what drives promotion. Callers that need
// a silent read use Get or All.
type Store struct {
	path    string
	entries map[string]*Entry
}

// NewStore opens the store at path, loading any persisted entries. A
// missing file starts empty; a corrupt file is treated as empty and logged,
// never propagated — losing a tier beats crashing a lifecycle pass.
func NewStore(path string) *Store {
	s := &Store{
		path:    path,
		entries: make(map[string]*Entry),
	}
	s.load()
	return s
}

// Path returns the store's backing file path.
func (s *Store) Path() string { return s.path }

func (s *Store) load() {
	file, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		debugLog.Warnf("store %s unreadable, starting empty: %v", s.path, err)
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	skipped := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			skipped++
			continue
		}
		if err := entry.Validate(); err != nil {
			skipped++
			continue
		}
		s.entries[entry.ID] = &entry
	}
	if err := scanner.Err(); err != nil {
		debugLog.Warnf("store %s truncated mid-read, keeping %d entries: %v", s.path, len(s.entries), err)
	}
	if skipped > 0 {
		debugLog.Warnf("store %s: skipped %d corrupt entries", s.path, skipped)
	}
}

// save writes the full store atomically (temp file then rename) so a crash
// mid-write never corrupts the persisted state.
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("memory: create store directory: %w", err)
	}

	var sb strings.Builder
	for _, entry := range s.sorted() {
		b, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("memory: marshal entry %s: %w", entry.ID, err)
		}
		sb.Write(b)
		sb.WriteByte('\n')
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("memory: write temp store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("memory: atomic rename %s: %w", s.path, err)
	}
	return nil
}

// sorted returns all entries ordered by ID. ULIDs sort by creation time,
// which gives every caller a deterministic iteration order.
func (s *Store) sorted() []*Entry {
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Add inserts or replaces an entry and persists the store. It fails only
// when persistence fails; the failure is reported to the caller, not
// retried.
func (s *Store) Add(entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	s.entries[entry.ID] = entry
	if err := s.save(); err != nil {
		delete(s.entries, entry.ID)
		return err
	}
	return nil
}

// Get returns the entry with the given ID, or nil. It does not touch the
// entry.
func (s *Store) Get(id string) *Entry {
	return s.entries[id]
}

// Remove deletes an entry. A missing ID is a no-op, not an error.
func (s *Store) Remove(id string) error {
	if _, ok := s.entries[id]; !ok {
		return nil
	}
	delete(s.entries, id)
	return s.save()
}

// All returns every entry ordered by ID.
func (s *Store) All() []*Entry {
	return s.sorted()
}

// Count returns the number of entries in the store.
func (s *Store) Count() int {
	return len(s.entries)
}

// Search ranks entries by keyword overlap with the query: the score of an
// entry is the number of distinct query terms present in its content. Ties
// break toward the smaller ID so results are stable. Every returned entry
// is touched at currentWake and the store is persisted, because search hits
// are the access signal that earns promotion.
func (s *Store) Search(query string, topK int, currentWake int64) ([]*Entry, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 || topK <= 0 {
		return nil, nil
	}

	type scored struct {
		score int
		entry *Entry
	}
	var hits []scored
	for _, entry := range s.sorted() {
		content := strings.ToLower(entry.Content)
		score := 0
		for _, term := range terms {
			if strings.Contains(content, term) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{score, entry})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	results := make([]*Entry, 0, len(hits))
	for _, h := range hits {
		h.entry.Touch(currentWake)
		results = append(results, h.entry)
	}
	if len(results) > 0 {
		if err := s.save(); err != nil {
			return results, fmt.Errorf("memory: persist access tracking: %w", err)
		}
	}
	return results, nil
}
