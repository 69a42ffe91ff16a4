package context

import (
	"context"
	"sort"
	"strings"

	"github.com/engramhq/engram/pkg/llm"
	"github.com/engramhq/engram/pkg/types"
)

// importanceFloor marks messages that must never be deleted by the
// ranked-deletion step. System messages and compressed summaries land at
// or above this line.
const importanceFloor = 90

// largeMessageBytes is the size past which a message is penalized as
// likely tool spam.
const largeMessageBytes = 2000

// recencyWindow is how many trailing messages get a recency bonus.
const recencyWindow = 5

// DeleteStrategy removes the least important messages, lowest score
// first, until the context fits the target. It never touches system
// messages or compressed summaries.
type DeleteStrategy struct{}

// NewDeleteStrategy creates the ranked-deletion step.
func NewDeleteStrategy() *DeleteStrategy {
	return &DeleteStrategy{}
}

// Name returns the strategy name.
func (s *DeleteStrategy) Name() string {
	return "ImportanceDeletion"
}

type scoredMessage struct {
	index int
	score int
}

// Apply scores every message and deletes from the bottom of the ranking
// until the recomputed token count drops under target or only protected
// messages remain.
func (s *DeleteStrategy) Apply(_ context.Context, wc *WorkingContext, _ llm.Provider, target int) (bool, error) {
	messages := wc.Messages()
	if len(messages) == 0 {
		return false, nil
	}

	scored := make([]scoredMessage, 0, len(messages))
	for i, msg := range messages {
		sc := scoreMessage(msg, i, len(messages))
		if sc >= importanceFloor {
			continue
		}
		scored = append(scored, scoredMessage{index: i, score: sc})
	}
	if len(scored) == 0 {
		return false, nil
	}

	// Lowest score goes first; older message breaks ties.
	sort.SliceStable(scored, func(a, b int) bool {
		if scored[a].score != scored[b].score {
			return scored[a].score < scored[b].score
		}
		return scored[a].index < scored[b].index
	})

	doomed := make(map[int]bool, len(scored))
	for _, sm := range scored {
		doomed[sm.index] = true
		if projectedTokens(wc, messages, doomed) <= target {
			break
		}
	}

	kept := make([]*types.Message, 0, len(messages)-len(doomed))
	for i, msg := range messages {
		if !doomed[i] {
			kept = append(kept, msg)
		}
	}
	wc.SetMessages(kept)

	debugLog.Infof("deletion removed %d of %d messages from %s", len(doomed), len(messages), wc.ID)
	return true, nil
}

// scoreMessage assigns the importance of one message.
func scoreMessage(msg *types.Message, index, total int) int {
	var score int
	switch msg.Role {
	case types.RoleSystem:
		score = 100
	case types.RoleUser:
		score = 50
	case types.RoleAssistant:
		score = 40
	default:
		score = 40
	}

	if index >= total-recencyWindow {
		score = max(score, 80)
	}
	if len(msg.Content) > largeMessageBytes {
		score -= 20
	}
	if strings.Contains(msg.Content, "[COMPRESSED") || msg.MetadataBool("summarized") {
		score += 30
	}
	return score
}

// projectedTokens counts the tokens the context would hold with the
// doomed set removed. Always recomputed from message content.
func projectedTokens(wc *WorkingContext, messages []*types.Message, doomed map[int]bool) int {
	survivors := make([]*types.Message, 0, len(messages))
	for i, msg := range messages {
		if !doomed[i] {
			survivors = append(survivors, msg)
		}
	}
	return wc.tok.CountMessagesTokens(survivors)
}
