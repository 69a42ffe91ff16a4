package context

import (
	"context"
	"fmt"
	"strings"

	"github.com/engramhq/engram/pkg/llm"
	"github.com/engramhq/engram/pkg/types"
)

// minSummarizable is the smallest number of non-system messages worth
// splitting into halves.
const minSummarizable = 6

// SummarizeStrategy replaces the oldest half of the non-system messages
// with a single synthetic summary produced by the generation service.
//
// The same strategy runs twice in the pipeline: once on the efficient tier
// and, if that falls short (or the context is identity-critical), again on
// the premium tier via a model override.
type SummarizeStrategy struct {
	tier  llm.Tier
	model string // model override for this tier; empty uses the provider's default
}

// NewSummarizeStrategy creates a summarization step bound to a generation
// tier. The model is the concrete backend fulfilling that tier.
func NewSummarizeStrategy(tier llm.Tier, model string) *SummarizeStrategy {
	return &SummarizeStrategy{tier: tier, model: model}
}

// Name returns the strategy name, qualified by tier.
func (s *SummarizeStrategy) Name() string {
	return fmt.Sprintf("HalfSummarization(%s)", s.tier)
}

// Apply splits non-system messages into an older and newer half and asks
// the provider to compress the older half into one system message. A
// provider failure is returned as-is; the pipeline treats it as a skipped
// step.
func (s *SummarizeStrategy) Apply(ctx context.Context, wc *WorkingContext, provider llm.Provider, _ int) (bool, error) {
	messages := wc.Messages()
	if len(messages) < 4 {
		return false, nil
	}

	var systemMsgs, otherMsgs []*types.Message
	for _, msg := range messages {
		if msg.Role == types.RoleSystem {
			systemMsgs = append(systemMsgs, msg)
		} else {
			otherMsgs = append(otherMsgs, msg)
		}
	}
	if len(otherMsgs) < minSummarizable {
		return false, nil
	}

	mid := len(otherMsgs) / 2
	oldMsgs := otherMsgs[:mid]
	recentMsgs := otherMsgs[mid:]

	summary, err := s.generateSummary(ctx, wc.ContextType, oldMsgs, provider)
	if err != nil {
		return false, err
	}

	rebuilt := make([]*types.Message, 0, len(systemMsgs)+1+len(recentMsgs))
	rebuilt = append(rebuilt, systemMsgs...)
	rebuilt = append(rebuilt, summary)
	rebuilt = append(rebuilt, recentMsgs...)
	wc.SetMessages(rebuilt)
	return true, nil
}

// generateSummary calls the generation service on this strategy's tier.
func (s *SummarizeStrategy) generateSummary(ctx context.Context, contextType string, toSummarize []*types.Message, provider llm.Provider) (*types.Message, error) {
	tiered := llm.ForModel(provider, s.model)

	response, err := tiered.Complete(ctx, []*types.Message{
		types.NewSystemMessage(compressionSystemPrompt),
		types.NewUserMessage(buildCompressionPrompt(contextType, toSummarize)),
	})
	if err != nil {
		return nil, fmt.Errorf("context: summarization on %s tier failed: %w", s.tier, err)
	}
	if strings.TrimSpace(response.Content) == "" {
		return nil, fmt.Errorf("context: summarization on %s tier returned empty output", s.tier)
	}

	return types.NewSystemMessage("[COMPRESSED HISTORY]\n" + response.Content).
		WithMetadata("summarized", true).
		WithMetadata("summary_count", len(toSummarize)).
		WithMetadata("summary_method", s.Name()), nil
}

// buildCompressionPrompt renders the messages under an explicit fidelity
// instruction: facts, names, dates, and outcomes survive; filler does not.
func buildCompressionPrompt(contextType string, messages []*types.Message) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Compress the following %s context history to save space.\n\n", contextType)

	b.WriteString("REQUIREMENTS:\n")
	b.WriteString("1. Preserve ALL facts, dates, names, numbers, and outcomes\n")
	b.WriteString("2. Preserve cause-effect relationships\n")
	b.WriteString("3. Remove redundancy, verbose tool output, and conversational filler\n")
	b.WriteString("4. Use concise language; bullet points are fine\n")
	b.WriteString("5. Output must be MUCH shorter than input (target: 30-50% of original)\n\n")

	b.WriteString("CONTENT TO COMPRESS:\n")
	for _, msg := range messages {
		fmt.Fprintf(&b, "[%s] %s\n", msg.Role, msg.Content)
	}

	return b.String()
}
