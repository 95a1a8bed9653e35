package infrastructure

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/Koksbox/dream-interpreter/internal/entities"
	"github.com/Koksbox/dream-interpreter/internal/interfaces"
)

// generateFunc matches genai's Models.GenerateContent so tests can stub it.
type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

type GeminiClient struct {
	generate  generateFunc
	modelName string
}

// NewGeminiClient creates a GenerationClient on the Gemini API backend.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiClient{generate: client.Models.GenerateContent, modelName: model}, nil
}

func (g *GeminiClient) Generate(ctx context.Context, req interfaces.GenerationRequest) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	temp := req.Temperature
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		Temperature:       &temp,
		MaxOutputTokens:   req.MaxOutputTokens,
	}

	res, err := g.generate(ctx, g.modelName, contents, cfg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", entities.ErrGenerationTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", entities.ErrGenerationUnavailable, err)
	}
	if res == nil {
		return "", fmt.Errorf("%w: nil response", entities.ErrMalformedResponse)
	}

	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty text", entities.ErrMalformedResponse)
	}
	return text, nil
}
