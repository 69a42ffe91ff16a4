package context

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/engramhq/engram/pkg/llm"
	"github.com/engramhq/engram/pkg/types"
)

// filePatterns match the ways file content shows up in a transcript. When
// the same file is read or shown repeatedly during iteration, only the
// latest instance carries information.
var filePatterns = []*regexp.Regexp{
	regexp.MustCompile(`FILE: (/[^\n]+)`),
	regexp.MustCompile(`Contents of (/[^\n]+):`),
	regexp.MustCompile("```" + `\w*\n// (/[^\n]+)`),
	regexp.MustCompile(`read_file\(['"]([^'"]+)`),
	regexp.MustCompile(`write_file\(['"]([^'"]+)`),
	regexp.MustCompile(`str_replace_file\(['"]([^'"]+)`),
}

// DedupStrategy removes exact and near-duplicate messages, keeping the
// most recent instance of each. It runs first in the pipeline because it
// is lossless: a duplicate's content survives in its newest copy.
//
// Messages shorter than minLength are exempt — short repeated
// acknowledgements ("OK", "Done") are legitimate, not duplication bugs.
type DedupStrategy struct {
	minLength int
}

// NewDedupStrategy creates a dedup strategy with the given minimum length
// for duplicate consideration.
func NewDedupStrategy(minLength int) *DedupStrategy {
	if minLength < 1 {
		minLength = 1
	}
	return &DedupStrategy{minLength: minLength}
}

// Name returns the strategy name.
func (s *DedupStrategy) Name() string { return "DuplicateSuppression" }

// Apply removes duplicate file instances, then byte-identical and
// near-identical messages, scanning newest-to-oldest so the latest
// instance of everything survives.
func (s *DedupStrategy) Apply(_ context.Context, wc *WorkingContext, _ llm.Provider, _ int) (bool, error) {
	removed := s.dedupFileContent(wc)
	removed += s.dedupIdenticalContent(wc)
	if removed > 0 {
		debugLog.Printf("dedup removed %d messages from %s", removed, wc.ID)
	}
	return removed > 0, nil
}

// dedupFileContent drops older messages that re-show a file path already
// present in a newer message.
func (s *DedupStrategy) dedupFileContent(wc *WorkingContext) int {
	messages := wc.Messages()
	if len(messages) < 2 {
		return 0
	}

	seenFiles := make(map[string]bool)
	toRemove := make(map[int]bool)

	for i := len(messages) - 1; i >= 0; i-- {
		content := messages[i].Content
		for _, pattern := range filePatterns {
			matches := pattern.FindAllStringSubmatch(content, -1)
			duplicate := false
			for _, match := range matches {
				path := strings.TrimSpace(match[1])
				if seenFiles[path] {
					duplicate = true
					break
				}
				seenFiles[path] = true
			}
			if duplicate {
				toRemove[i] = true
				break
			}
		}
	}

	return applyRemovals(wc, messages, toRemove)
}

// dedupIdenticalContent drops older messages whose normalized content
// hash, or normalized 500-byte prefix, matches a newer message.
func (s *DedupStrategy) dedupIdenticalContent(wc *WorkingContext) int {
	messages := wc.Messages()
	if len(messages) < 2 {
		return 0
	}

	seenHashes := make(map[string]bool)
	toRemove := make(map[int]bool)

	for i := len(messages) - 1; i >= 0; i-- {
		content := messages[i].Content
		if len(content) < s.minLength {
			continue
		}
		h := normalizedHash(content)
		if seenHashes[h] {
			toRemove[i] = true
			continue
		}
		seenHashes[h] = true
	}

	// Near-duplicates: same content with trailing edits still shares a
	// prefix.
	seenPrefixes := make(map[string]bool)
	for i := len(messages) - 1; i >= 0; i-- {
		if toRemove[i] {
			continue
		}
		content := messages[i].Content
		if len(content) < s.minLength {
			continue
		}
		prefix := content
		if len(prefix) > 500 {
			prefix = prefix[:500]
		}
		p := normalize(prefix)
		if seenPrefixes[p] {
			toRemove[i] = true
			continue
		}
		seenPrefixes[p] = true
	}

	return applyRemovals(wc, messages, toRemove)
}

func applyRemovals(wc *WorkingContext, messages []*types.Message, toRemove map[int]bool) int {
	if len(toRemove) == 0 {
		return 0
	}
	kept := make([]*types.Message, 0, len(messages)-len(toRemove))
	for i, msg := range messages {
		if !toRemove[i] {
			kept = append(kept, msg)
		}
	}
	wc.SetMessages(kept)
	return len(toRemove)
}

// normalize collapses whitespace and case so formatting-only differences
// do not defeat duplicate detection.
func normalize(content string) string {
	return strings.Join(strings.Fields(strings.ToLower(content)), " ")
}

func normalizedHash(content string) string {
	sum := sha256.Sum256([]byte(normalize(content)))
	return hex.EncodeToString(sum[:])
}
