package context

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/engramhq/engram/pkg/config"
	"github.com/engramhq/engram/pkg/llm"
)

// ErrProtected is returned when a forced compaction is requested against
// a never-forget context. Protected contexts are never mutated.
var ErrProtected = errors.New("context: protected context cannot be compacted")

// StepResult records the outcome of one pipeline strategy.
type StepResult struct {
	Strategy string `json:"strategy"`
	Applied  bool   `json:"applied"`
	Error    string `json:"error,omitempty"`
	Tokens   int    `json:"tokens_after"`
}

// Result is one compaction run, from trigger to final state.
type Result struct {
	ContextID    string       `json:"context_id"`
	Timestamp    time.Time    `json:"timestamp"`
	State        RunState     `json:"final_state"`
	TokensBefore int          `json:"tokens_before"`
	TokensAfter  int          `json:"tokens_after"`
	Target       int          `json:"target"`
	Steps        []StepResult `json:"steps,omitempty"`
	Warning      string       `json:"warning,omitempty"`
}

// Freed is how many tokens the run recovered.
func (r *Result) Freed() int {
	return r.TokensBefore - r.TokensAfter
}

// Compactor runs the escalating compaction pipeline against working
// contexts. Each strategy is tried in order of increasing destructiveness
// and the pipeline stops as soon as the context fits the target.
type Compactor struct {
	provider  llm.Provider
	cfg       config.CompactionConfig
	models    config.ModelsConfig
	backups   *BackupStore
	auditPath string
}

// NewCompactor wires a compactor to a generation provider and a data
// directory for backups and the audit log.
func NewCompactor(provider llm.Provider, cfg config.CompactionConfig, models config.ModelsConfig, dataDir string) *Compactor {
	return &Compactor{
		provider:  provider,
		cfg:       cfg,
		models:    models,
		backups:   NewBackupStore(filepath.Join(dataDir, "backups")),
		auditPath: filepath.Join(dataDir, "compaction.log"),
	}
}

// Backups exposes the snapshot store for restore tooling.
func (c *Compactor) Backups() *BackupStore {
	return c.backups
}

// MaybeCompact compacts the context if it is over the trigger threshold.
// Below the trigger it is a no-op. Never-forget contexts are never
// mutated; an over-threshold protected context only produces a warning.
func (c *Compactor) MaybeCompact(ctx context.Context, wc *WorkingContext) (*Result, error) {
	tokens := wc.TokenCount()
	trigger := int(float64(wc.MaxTokens) * c.cfg.TriggerFraction)

	result := &Result{
		ContextID:    wc.ID,
		Timestamp:    time.Now().UTC(),
		TokensBefore: tokens,
		TokensAfter:  tokens,
		Target:       c.target(wc),
	}

	if tokens < trigger {
		result.State = StateIdle
		return result, nil
	}

	if wc.Protection == ProtectionNeverForget {
		result.State = StateIdle
		result.Warning = fmt.Sprintf("protected context %s at %d/%d tokens, not compacting", wc.ID, tokens, wc.MaxTokens)
		debugLog.Warnf("%s", result.Warning)
		c.audit(result)
		return result, nil
	}

	return c.run(ctx, wc, result)
}

// ForceCompact runs the pipeline regardless of the trigger threshold.
// It fails with ErrProtected for never-forget contexts.
func (c *Compactor) ForceCompact(ctx context.Context, wc *WorkingContext) (*Result, error) {
	if wc.Protection == ProtectionNeverForget {
		return nil, fmt.Errorf("%w: %s", ErrProtected, wc.ID)
	}

	tokens := wc.TokenCount()
	result := &Result{
		ContextID:    wc.ID,
		Timestamp:    time.Now().UTC(),
		TokensBefore: tokens,
		TokensAfter:  tokens,
		Target:       c.target(wc),
	}
	return c.run(ctx, wc, result)
}

func (c *Compactor) target(wc *WorkingContext) int {
	return int(float64(wc.MaxTokens) * c.cfg.TargetFraction)
}

// run executes the escalation ladder. Every step is followed by a fresh
// token recount; the ladder short-circuits as soon as the target is met,
// with one exception: identity-critical contexts always reach the
// premium summarization tier before the run can settle.
func (c *Compactor) run(ctx context.Context, wc *WorkingContext, result *Result) (*Result, error) {
	result.State = StateTriggered
	target := result.Target

	type rung struct {
		state    RunState
		strategy Strategy
		forced   bool // run even when already under target
	}
	ladder := []rung{
		{StateDeduplicating, NewDedupStrategy(c.cfg.MinDedupLength), false},
		{StateSummarizing, NewSummarizeStrategy(llm.TierEfficient, c.models.Efficient), false},
		{StateEscalating, NewSummarizeStrategy(llm.TierPremium, c.models.Premium), wc.IdentityCritical},
		{StateDeleting, NewDeleteStrategy(), false},
		{StateTruncated, NewTruncateStrategy(c.cfg.KeepRecent, c.backups), false},
	}

	for _, r := range ladder {
		// Forced rungs run even when the target is already met: identity-
		// critical content always gets the premium summarization pass.
		if wc.TokenCount() <= target && !r.forced {
			continue
		}
		applied, err := r.strategy.Apply(ctx, wc, c.provider, target)
		step := StepResult{Strategy: r.strategy.Name(), Applied: applied}
		if applied {
			// Only rungs that actually changed the context advance the
			// reported state; a no-op rung must not claim the run.
			result.State = r.state
		}
		if err != nil {
			// A failed step produced nothing; move down the ladder.
			step.Error = err.Error()
			debugLog.Warnf("compaction step %s on %s skipped: %v", r.strategy.Name(), wc.ID, err)
		}
		step.Tokens = wc.TokenCount()
		result.Steps = append(result.Steps, step)
	}

	result.TokensAfter = wc.TokenCount()
	if result.TokensAfter <= target && result.State != StateTruncated {
		result.State = StateSatisfied
	}
	if result.TokensAfter > wc.MaxTokens {
		result.Warning = fmt.Sprintf("context %s still holds %d tokens after full pipeline (max %d)", wc.ID, result.TokensAfter, wc.MaxTokens)
		debugLog.Errorf("%s", result.Warning)
	}

	c.audit(result)
	return result, nil
}

// audit appends the run record to the compaction log. Audit failures are
// logged and swallowed; they never fail a compaction.
func (c *Compactor) audit(result *Result) {
	if err := os.MkdirAll(filepath.Dir(c.auditPath), 0o755); err != nil {
		debugLog.Warnf("failed to create audit dir: %v", err)
		return
	}
	f, err := os.OpenFile(c.auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		debugLog.Warnf("failed to open audit log: %v", err)
		return
	}
	defer f.Close()

	line, err := json.Marshal(result)
	if err != nil {
		debugLog.Warnf("failed to marshal audit record: %v", err)
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		debugLog.Warnf("failed to append audit record: %v", err)
	}
}
