package context

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/engramhq/engram/pkg/types"
)

// maxBackupsPerContext bounds how many snapshots we retain for one
// context before pruning the oldest.
const maxBackupsPerContext = 10

// BackupStore persists full-context snapshots before destructive
// operations so a truncation is never a one-way door.
type BackupStore struct {
	dir string
}

// NewBackupStore creates a backup store rooted at dir.
func NewBackupStore(dir string) *BackupStore {
	return &BackupStore{dir: dir}
}

type backupDoc struct {
	ContextID   string           `json:"context_id"`
	ContextType string           `json:"context_type"`
	SavedAt     time.Time        `json:"saved_at"`
	TokenCount  int              `json:"token_count"`
	Messages    []*types.Message `json:"messages"`
}

// Save writes a timestamped snapshot of the context and prunes old
// snapshots past the retention limit.
func (b *BackupStore) Save(wc *WorkingContext) (string, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", fmt.Errorf("context: failed to create backup dir: %w", err)
	}

	doc := backupDoc{
		ContextID:   wc.ID,
		ContextType: wc.ContextType,
		SavedAt:     time.Now().UTC(),
		TokenCount:  wc.TokenCount(),
		Messages:    wc.Messages(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("context: failed to marshal backup: %w", err)
	}

	name := fmt.Sprintf("%s_%d.json", wc.ID, doc.SavedAt.UnixNano())
	path := filepath.Join(b.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("context: failed to write backup: %w", err)
	}

	b.prune(wc.ID)
	return path, nil
}

// Restore loads a snapshot file and replaces the context's messages
// with its contents.
func (b *BackupStore) Restore(wc *WorkingContext, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("context: failed to read backup: %w", err)
	}
	var doc backupDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("context: corrupt backup file %s: %w", path, err)
	}
	if doc.ContextID != wc.ID {
		return fmt.Errorf("context: backup %s belongs to context %q, not %q", path, doc.ContextID, wc.ID)
	}
	wc.SetMessages(doc.Messages)
	return nil
}

// RestoreLatest replaces the context's messages with its most recent
// snapshot.
func (b *BackupStore) RestoreLatest(wc *WorkingContext) error {
	backups := b.List(wc.ID)
	if len(backups) == 0 {
		return fmt.Errorf("context: no backups for %s", wc.ID)
	}
	return b.Restore(wc, backups[len(backups)-1])
}

// List returns the backup file paths for a context, oldest first.
func (b *BackupStore) List(contextID string) []string {
	matches, err := filepath.Glob(filepath.Join(b.dir, contextID+"_*.json"))
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}

// prune drops the oldest snapshots beyond the retention limit. Failures
// are logged, not surfaced; retention is best-effort.
func (b *BackupStore) prune(contextID string) {
	backups := b.List(contextID)
	for len(backups) > maxBackupsPerContext {
		if err := os.Remove(backups[0]); err != nil {
			debugLog.Warnf("failed to prune backup %s: %v", backups[0], err)
			return
		}
		backups = backups[1:]
	}
}
