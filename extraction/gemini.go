package extraction

import (
	"context"
	"net/http"

	"google.golang.org/genai"
	"wa_listings/models"
)

// GeminiConfig configures the in-process backend. BaseURL is only set for
// proxies and tests.
type GeminiConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// Gemini extracts in-process through the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, failf("missing GOOGLE_API_KEY")
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, failErr("create gemini client", err)
	}
	return &Gemini{client: client, model: cfg.Model}, nil
}

// Generate returns the raw model text for one message.
func (g *Gemini) Generate(ctx context.Context, text, chatName string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(Prompt(text, chatName)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", failErr("generate content", err)
	}
	if len(resp.Candidates) == 0 {
		return "", failf("no candidates")
	}
	out := resp.Text()
	if out == "" {
		return "", failf("empty candidate (finish reason %s)", resp.Candidates[0].FinishReason)
	}
	return out, nil
}

func (g *Gemini) Extract(ctx context.Context, text, chatName string) (*models.ListingRecord, error) {
	out, err := g.Generate(ctx, text, chatName)
	if err != nil {
		return nil, err
	}
	return Decode(out)
}
