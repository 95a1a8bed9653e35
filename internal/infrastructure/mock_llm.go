package infrastructure

import (
	"context"
	"fmt"
	"strings"

	"github.com/Koksbox/dream-interpreter/internal/interfaces"
)

// MockGenerationClient answers without a backend. Used for local runs.
type MockGenerationClient struct{}

func NewMockGenerationClient() *MockGenerationClient {
	return &MockGenerationClient{}
}

func (m *MockGenerationClient) Generate(ctx context.Context, req interfaces.GenerationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimSpace(req.Prompt), "\n")
	last := lines[len(lines)-1]
	return fmt.Sprintf("Я слышу тебя. Ты рассказал: %q. Какие чувства остались после пробуждения?", last), nil
}
