package interfaces

import "context"

// GenerationRequest is what the engine sends to a text-generation backend.
type GenerationRequest struct {
	System          string
	Prompt          string
	Temperature     float32
	MaxOutputTokens int32
}

// GenerationClient turns an assembled prompt into a reply. Implementations
// return entities.ErrGenerationTimeout, ErrGenerationUnavailable or
// ErrMalformedResponse (possibly wrapped) on failure.
type GenerationClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}
