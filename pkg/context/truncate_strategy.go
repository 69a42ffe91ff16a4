package context

import (
	"context"
	"fmt"

	"github.com/engramhq/engram/pkg/llm"
	"github.com/engramhq/engram/pkg/types"
)

// TruncateStrategy is the last resort: keep the first message and the
// most recent few, drop everything between, and leave a marker where
// the gap is. A full snapshot is written before anything is dropped.
type TruncateStrategy struct {
	keepRecent int
	backups    *BackupStore
}

// NewTruncateStrategy creates a truncation step that keeps the first
// message plus keepRecent trailing messages.
func NewTruncateStrategy(keepRecent int, backups *BackupStore) *TruncateStrategy {
	if keepRecent < 1 {
		keepRecent = 1
	}
	return &TruncateStrategy{keepRecent: keepRecent, backups: backups}
}

// Name returns the strategy name.
func (s *TruncateStrategy) Name() string {
	return "HardTruncation"
}

// Apply truncates the context. If the snapshot cannot be written, the
// truncation does not happen.
func (s *TruncateStrategy) Apply(_ context.Context, wc *WorkingContext, _ llm.Provider, _ int) (bool, error) {
	messages := wc.Messages()
	if len(messages) <= s.keepRecent+1 {
		return false, nil
	}

	backupPath, err := s.backups.Save(wc)
	if err != nil {
		return false, fmt.Errorf("context: refusing to truncate %s without a backup: %w", wc.ID, err)
	}

	dropped := len(messages) - 1 - s.keepRecent
	marker := types.NewSystemMessage(fmt.Sprintf(
		"[TRUNCATED: %d messages removed to fit the token budget; full copy at %s]",
		dropped, backupPath)).
		WithMetadata("truncated", true).
		WithMetadata("truncated_count", dropped)

	rebuilt := make([]*types.Message, 0, s.keepRecent+2)
	rebuilt = append(rebuilt, messages[0])
	rebuilt = append(rebuilt, marker)
	rebuilt = append(rebuilt, messages[len(messages)-s.keepRecent:]...)
	wc.SetMessages(rebuilt)

	debugLog.Warnf("hard truncation on %s dropped %d messages, backup at %s", wc.ID, dropped, backupPath)
	return true, nil
}
