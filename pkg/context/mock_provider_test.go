package context

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/engramhq/engram/pkg/llm"
	"github.com/engramhq/engram/pkg/types"
)

type MockLLMProvider struct {
	mock.Mock
}

func (m *MockLLMProvider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	args := m.Called(ctx, messages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Message), args.Error(1)
}

func (m *MockLLMProvider) GetModel() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockLLMProvider) GetModelInfo() *types.ModelInfo {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*types.ModelInfo)
}

func (m *MockLLMProvider) CloneWithModel(model string) llm.Provider {
	args := m.Called(model)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(llm.Provider)
}
