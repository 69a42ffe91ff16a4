// Package llm provides the abstraction over the external generation service
// used by the compaction pipeline.
//
// Providers handle API communication with LLM services and return plain
// messages. The compactor layer is responsible for prompt construction,
// tier selection, and treating provider failures as skippable — providers
// stay focused on transport concerns.
package llm

import (
	"context"

	"github.com/engramhq/engram/pkg/types"
)

// Tier selects the cost/quality trade-off for a generation call. The
// contract is "try efficient, escalate to premium on failure or for
// critical content" — which concrete model fulfils a tier is provider
// configuration, never hardcoded at call sites.
type Tier string

const (
	// TierEfficient is the default, cost-efficient model tier.
	TierEfficient Tier = "efficient"
	// TierPremium is the higher-capability escalation tier.
	TierPremium Tier = "premium"
)

// Provider defines the interface for LLM integrations.
type Provider interface {
	// Complete sends messages to the LLM and returns the full response.
	//
	// Returns the assistant's response message or an error. Callers that
	// can degrade gracefully (the compaction pipeline) must treat an error
	// as "this step produced nothing" rather than aborting.
	Complete(ctx context.Context, messages []*types.Message) (*types.Message, error)

	// GetModel returns the model name being used.
	GetModel() string

	// GetModelInfo returns information about the LLM model being used.
	GetModelInfo() *types.ModelInfo
}

// ModelCloner is an optional interface that providers can implement to
// support lightweight per-call model overrides without constructing a full
// second provider. The returned provider shares credentials and transport
// with the original but directs calls to the given model.
type ModelCloner interface {
	CloneWithModel(model string) Provider
}

// ForModel returns a provider directed at the given model. If model is
// empty or the provider does not implement ModelCloner, the provider is
// returned unchanged.
func ForModel(p Provider, model string) Provider {
	if model == "" || model == p.GetModel() {
		return p
	}
	if cloner, ok := p.(ModelCloner); ok {
		return cloner.CloneWithModel(model)
	}
	return p
}
