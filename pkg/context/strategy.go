package context

import (
	"context"

	"github.com/engramhq/engram/pkg/llm"
)

// Strategy is one step of the compaction pipeline. Each strategy
// implements a specific approach to reducing context size while preserving
// as much meaning as its position in the pipeline allows.
type Strategy interface {
	// Name returns the strategy's identifier for logging and audit records.
	Name() string

	// Apply attempts to shrink the working context toward target tokens,
	// modifying it in place. It returns whether anything changed. An error
	// means this strategy produced nothing — the pipeline treats that as a
	// no-op and moves to the next step, never as a reason to abort.
	Apply(ctx context.Context, wc *WorkingContext, provider llm.Provider, target int) (bool, error)
}

// RunState tracks a compaction run through the pipeline for audit records.
type RunState string

const (
	StateIdle          RunState = "idle"
	StateTriggered     RunState = "triggered"
	StateDeduplicating RunState = "deduplicating"
	StateSummarizing   RunState = "summarizing"
	StateEscalating    RunState = "escalating"
	StateDeleting      RunState = "deleting"
	StateTruncated     RunState = "truncated"
	StateSatisfied     RunState = "satisfied"
)
