package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Tier names an entry collection within a persona.
type Tier string

const (
	// TierShort is the short-term tier entries are created in.
	TierShort Tier = "short"
	// TierLong is the long-term tier entries are promoted to.
	TierLong Tier = "long"
)

// ArchiveRecord is the self-describing snapshot written when an entry
// leaves the long-term tier. Records are complete on their own so the
// archive can be searched and restored without any other state.
type ArchiveRecord struct {
	ID               string `json:"id"`
	Persona          string `json:"persona"`
	Tier             Tier   `json:"tier"`
	Content          string `json:"content"`
	Origin           string `json:"origin"`
	Kind             Kind   `json:"kind"`
	Lineage          string `json:"lineage,omitempty"`
	CreatedWake      int64  `json:"created_wake"`
	LastAccessedWake int64  `json:"last_accessed_wake"`
	AccessCount      int    `json:"access_count"`
	ArchivedAtWake   int64  `json:"archived_at_wake"`
}

// Archive is the uncapped, append-only cold store. Records are never
// mutated once written and nothing re-promotes them automatically; writes
// from concurrent lifecycle passes need no coordination beyond O_APPEND.
type Archive struct {
	path string
}

// NewArchive returns an archive backed by the JSONL file at path. The file
// is created lazily on first append.
func NewArchive(path string) *Archive {
	return &Archive{path: path}
}

// Path returns the archive's backing file path.
func (a *Archive) Path() string { return a.path }

// Append writes one record to the end of the archive.
func (a *Archive) Append(record ArchiveRecord) error {
	if err := os.MkdirAll(filepath.Dir(a.path), 0o750); err != nil {
		return fmt.Errorf("memory: create archive directory: %w", err)
	}
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("memory: marshal archive record %s: %w", record.ID, err)
	}

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("memory: open archive: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("memory: append archive record %s: %w", record.ID, err)
	}
	return nil
}

// snapshot builds the archive record for an entry leaving the given tier.
func snapshot(entry *Entry, tier Tier, wake int64) ArchiveRecord {
	return ArchiveRecord{
		ID:               entry.ID,
		Persona:          entry.Persona,
		Tier:             tier,
		Content:          entry.Content,
		Origin:           entry.Origin,
		Kind:             entry.Kind,
		Lineage:          entry.Lineage,
		CreatedWake:      entry.CreatedWake,
		LastAccessedWake: entry.LastAccessedWake,
		AccessCount:      entry.AccessCount,
		ArchivedAtWake:   wake,
	}
}

// Search scans the archive for records whose serialized form contains the
// query, case-insensitively — the grep-style search contract. At most
// maxResults records are returned, oldest first. Corrupt lines are skipped.
func (a *Archive) Search(query string, maxResults int) ([]ArchiveRecord, error) {
	file, err := os.Open(a.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: open archive: %w", err)
	}
	defer file.Close()

	needle := strings.ToLower(query)
	var results []ArchiveRecord

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(strings.ToLower(line), needle) {
			continue
		}
		var record ArchiveRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			continue
		}
		results = append(results, record)
		if maxResults > 0 && len(results) >= maxResults {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return results, fmt.Errorf("memory: scan archive: %w", err)
	}
	return results, nil
}

// Find returns the most recent archive record with the given entry ID, or
// nil when the entry was never archived.
func (a *Archive) Find(id string) (*ArchiveRecord, error) {
	file, err := os.Open(a.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: open archive: %w", err)
	}
	defer file.Close()

	var found *ArchiveRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var record ArchiveRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		if record.ID == id {
			r := record
			found = &r
		}
	}
	if err := scanner.Err(); err != nil {
		return found, fmt.Errorf("memory: scan archive: %w", err)
	}
	return found, nil
}

// Count returns the number of records in the archive.
func (a *Archive) Count() (int, error) {
	file, err := os.Open(a.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("memory: open archive: %w", err)
	}
	defer file.Close()

	count := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if len(strings.TrimSpace(scanner.Text())) > 0 {
			count++
		}
	}
	return count, scanner.Err()
}
