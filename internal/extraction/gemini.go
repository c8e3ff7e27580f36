package extraction

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModelName is used when no model is configured.
const DefaultModelName = "gemini-2.5-flash"

// GeminiConfig selects the Gemini backend. An API key selects the Gemini API;
// otherwise Project and Location select Vertex AI.
type GeminiConfig struct {
	APIKey   string
	Project  string
	Location string
	Model    string
}

// GeminiService implements Service on top of the genai SDK.
type GeminiService struct {
	client   *genai.Client
	model    string
	registry *Registry
}

// NewGeminiService creates the genai client. Missing credentials are a
// configuration error.
func NewGeminiService(ctx context.Context, cfg GeminiConfig, registry *Registry) (*GeminiService, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: task registry is required", ErrConfiguration)
	}

	cc := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	}
	switch {
	case cfg.APIKey != "":
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	case cfg.Project != "":
		cc.Project = cfg.Project
		cc.Location = cfg.Location
		cc.Backend = genai.BackendVertexAI
	default:
		return nil, fmt.Errorf("%w: GEMINI_API_KEY or GOOGLE_CLOUD_PROJECT must be set", ErrConfiguration)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("%w: create genai client: %v", ErrConfiguration, err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModelName
	}

	return &GeminiService{
		client:   client,
		model:    model,
		registry: registry,
	}, nil
}

// Complete renders the task prompt and sends it to the model.
func (g *GeminiService) Complete(ctx context.Context, req Request) (string, error) {
	td, prompt, err := g.registry.Render(req)
	if err != nil {
		return "", err
	}

	config := &genai.GenerateContentConfig{
		Temperature: td.Temperature,
	}
	if td.JSON {
		config.ResponseMIMEType = "application/json"
	}
	if sys := g.registry.System(); sys != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: sys}},
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%s: generate content: %w", req.Task, err)
		}
		return "", fmt.Errorf("%w: %s: generate content: %w", ErrTransport, req.Task, err)
	}

	// An empty or blocked answer is returned as-is; callers treat it as unparsable.
	return resp.Text(), nil
}
