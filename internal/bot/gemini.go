package bot

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// DefaultModel is used when GeminiConfig.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// GeminiConfig configures the Gemini text-generation client.
type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the public Gemini endpoint, mostly for tests.
	BaseURL string
	// HTTPClient is optional; the SDK default is used when nil.
	HTTPClient *http.Client
}

// GeminiClient implements Querier on top of the Gemini generateContent API.
type GeminiClient struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

// NewGeminiClient creates a Gemini client. A missing API key is not an error
// here: the client is still returned and every Query fails with
// ErrMissingAPIKey, which the orchestrator turns into the fallback reply.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, log *zap.Logger) (*GeminiClient, error) {
	if log == nil {
		log = zap.NewNop()
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	c := &GeminiClient{model: model, log: log.Named("gemini")}
	if cfg.APIKey == "" {
		c.log.Warn("GEMINI_API_KEY is empty; bot queries will fall back")
		return c, nil
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	c.client = client
	return c, nil
}

// Model returns the model id requests are sent to.
func (c *GeminiClient) Model() string {
	return c.model
}

// Query sends prompt as the only user turn and returns the first text part of
// the first candidate.
func (c *GeminiClient) Query(ctx context.Context, prompt string) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("%w: %w", ErrBotQuery, ErrMissingAPIKey)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("%w: generateContent: %w", ErrBotQuery, err)
	}

	text, err := firstText(resp)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBotQuery, err)
	}

	c.log.Debug("Gemini response received", zap.String("model", c.model), zap.Int("length", len(text)))
	return text, nil
}

func firstText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return "", ErrEmptyResponse
	}

	for _, part := range candidate.Content.Parts {
		// Thought summaries are not part of the answer.
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		return part.Text, nil
	}
	return "", ErrEmptyResponse
}
