package context

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/engramhq/engram/pkg/config"
	"github.com/engramhq/engram/pkg/llm"
	"github.com/engramhq/engram/pkg/types"
)

func TestSummarizeStrategy_Name(t *testing.T) {
	assert.Equal(t, "HalfSummarization(efficient)", NewSummarizeStrategy(llm.TierEfficient, "m1").Name())
	assert.Equal(t, "HalfSummarization(premium)", NewSummarizeStrategy(llm.TierPremium, "m2").Name())
}

func TestSummarizeStrategy_CompressesOlderHalf(t *testing.T) {
	wc := newTestContext(t, config.ContextConfig{MaxTokens: 10000})
	system := types.NewSystemMessage("you are the agent")
	wc.Append(system)

	var turns []*types.Message
	for i := 0; i < 6; i++ {
		msg := types.NewUserMessage("conversation turn")
		turns = append(turns, msg)
		wc.Append(msg)
	}

	mockLLM := new(MockLLMProvider)
	mockLLM.On("GetModel").Return("efficient-model")
	mockLLM.On("Complete", mock.Anything, mock.Anything).Return(
		types.NewAssistantMessage("condensed history"), nil)

	applied, err := NewSummarizeStrategy(llm.TierEfficient, "efficient-model").
		Apply(context.Background(), wc, mockLLM, 0)
	require.NoError(t, err)
	assert.True(t, applied)
	mockLLM.AssertNumberOfCalls(t, "Complete", 1)

	msgs := wc.Messages()
	// [system] [summary] [recent half verbatim]
	require.Len(t, msgs, 5)
	assert.Same(t, system, msgs[0])

	summary := msgs[1]
	assert.Equal(t, types.RoleSystem, summary.Role)
	assert.Contains(t, summary.Content, "[COMPRESSED HISTORY]")
	assert.Contains(t, summary.Content, "condensed history")
	assert.Equal(t, true, summary.Metadata["summarized"])
	assert.Equal(t, 3, summary.Metadata["summary_count"])

	assert.Same(t, turns[3], msgs[2])
	assert.Same(t, turns[4], msgs[3])
	assert.Same(t, turns[5], msgs[4])
}

func TestSummarizeStrategy_TooFewMessagesIsNoOp(t *testing.T) {
	wc := newTestContext(t, config.ContextConfig{MaxTokens: 10000})
	wc.Append(types.NewSystemMessage("system"))
	for i := 0; i < 5; i++ {
		wc.Append(types.NewUserMessage("turn"))
	}

	mockLLM := new(MockLLMProvider)
	applied, err := NewSummarizeStrategy(llm.TierEfficient, "efficient-model").
		Apply(context.Background(), wc, mockLLM, 0)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 6, wc.Len())
	mockLLM.AssertNotCalled(t, "Complete")
}

func TestSummarizeStrategy_ProviderFailureLeavesContextIntact(t *testing.T) {
	wc := newTestContext(t, config.ContextConfig{MaxTokens: 10000})
	for i := 0; i < 6; i++ {
		wc.Append(types.NewUserMessage("turn"))
	}

	mockLLM := new(MockLLMProvider)
	mockLLM.On("GetModel").Return("efficient-model")
	mockLLM.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("service unavailable"))

	applied, err := NewSummarizeStrategy(llm.TierEfficient, "efficient-model").
		Apply(context.Background(), wc, mockLLM, 0)
	assert.Error(t, err)
	assert.False(t, applied)
	assert.Equal(t, 6, wc.Len(), "a failed summarization must not mutate the context")
}

func TestSummarizeStrategy_EmptyResponseIsAnError(t *testing.T) {
	wc := newTestContext(t, config.ContextConfig{MaxTokens: 10000})
	for i := 0; i < 6; i++ {
		wc.Append(types.NewUserMessage("turn"))
	}

	mockLLM := new(MockLLMProvider)
	mockLLM.On("GetModel").Return("efficient-model")
	mockLLM.On("Complete", mock.Anything, mock.Anything).Return(
		types.NewAssistantMessage("   "), nil)

	applied, err := NewSummarizeStrategy(llm.TierEfficient, "efficient-model").
		Apply(context.Background(), wc, mockLLM, 0)
	assert.Error(t, err)
	assert.False(t, applied)
	assert.Equal(t, 6, wc.Len())
}

func TestSummarizeStrategy_PremiumTierUsesModelOverride(t *testing.T) {
	wc := newTestContext(t, config.ContextConfig{MaxTokens: 10000})
	for i := 0; i < 6; i++ {
		wc.Append(types.NewUserMessage("turn"))
	}

	premium := new(MockLLMProvider)
	premium.On("Complete", mock.Anything, mock.Anything).Return(
		types.NewAssistantMessage("premium summary"), nil)

	base := new(MockLLMProvider)
	base.On("GetModel").Return("efficient-model")
	base.On("CloneWithModel", "premium-model").Return(premium)

	applied, err := NewSummarizeStrategy(llm.TierPremium, "premium-model").
		Apply(context.Background(), wc, base, 0)
	require.NoError(t, err)
	assert.True(t, applied)

	base.AssertNotCalled(t, "Complete")
	premium.AssertNumberOfCalls(t, "Complete", 1)
}
