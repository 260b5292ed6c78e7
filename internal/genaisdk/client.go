package genaisdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"adstudio/internal/ad"
	"adstudio/internal/creative"
)

type Options struct {
	// Vertex selects Vertex AI (Project and Location) instead of the Gemini
	// API (APIKey).
	Vertex   bool
	APIKey   string
	Project  string
	Location string
	// BaseURL overrides the service endpoint.
	BaseURL      string
	ConceptModel string
	ImageModel   string
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Client implements creative.Capability with the google.golang.org/genai SDK.
type Client struct {
	models       *genai.Models
	conceptModel string
	imageModel   string
	logger       *slog.Logger
}

var _ creative.Capability = (*Client)(nil)

func New(ctx context.Context, opts Options) (*Client, error) {
	cfg := &genai.ClientConfig{
		HTTPClient: opts.HTTPClient,
	}
	if opts.Vertex {
		if strings.TrimSpace(opts.Project) == "" {
			return nil, errors.New("vertex backend needs a project")
		}
		cfg.Backend = genai.BackendVertexAI
		cfg.Project = opts.Project
		cfg.Location = opts.Location
	} else {
		if strings.TrimSpace(opts.APIKey) == "" {
			return nil, errors.New("gemini backend needs an API key")
		}
		cfg.Backend = genai.BackendGeminiAPI
		cfg.APIKey = opts.APIKey
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}

	conceptModel := opts.ConceptModel
	if conceptModel == "" {
		conceptModel = "gemini-2.5-pro"
	}
	imageModel := opts.ImageModel
	if imageModel == "" {
		imageModel = "gemini-2.5-flash-image"
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		models:       client.Models,
		conceptModel: conceptModel,
		imageModel:   imageModel,
		logger:       logger,
	}, nil
}

func (c *Client) GenerateStructured(ctx context.Context, req creative.StructuredRequest) ([]byte, error) {
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(req.Temperature)),
		ResponseMIMEType: "application/json",
		ResponseSchema:   toSchema(req.Schema),
	}

	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, c.conceptModel, toContents(req.Prompt, req.Images), config)
	if err != nil {
		return nil, fmt.Errorf("generate concepts: %w", err)
	}
	c.logger.Debug("genai call", "model", c.conceptModel, "dur_ms", time.Since(start).Milliseconds())

	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		if reason := blockReason(resp); reason != "" {
			return nil, fmt.Errorf("no concept text returned (%s)", reason)
		}
	}
	return []byte(text), nil
}

func (c *Client) GenerateImage(ctx context.Context, req creative.ImageRequest) ([]creative.Part, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
	}
	if req.AspectRatio != "" {
		config.ImageConfig = &genai.ImageConfig{AspectRatio: req.AspectRatio}
	}

	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, c.imageModel, toContents(req.Prompt, req.Images), config)
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	c.logger.Debug("genai call", "model", c.imageModel, "dur_ms", time.Since(start).Milliseconds())

	parts := fromResponse(resp)
	if len(parts) == 0 {
		if reason := blockReason(resp); reason != "" {
			return nil, fmt.Errorf("%w (%s)", creative.ErrNoImageData, reason)
		}
	}
	return parts, nil
}

func toContents(prompt string, images []ad.Image) []*genai.Content {
	parts := []*genai.Part{genai.NewPartFromText(strings.TrimSpace(prompt))}
	for _, img := range images {
		if img.Empty() {
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

func toSchema(s *creative.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Items:       toSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.PropertyOrdering = s.Required
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toSchema(prop)
		}
	}
	return out
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

func fromResponse(resp *genai.GenerateContentResponse) []creative.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var out []creative.Part
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil {
			continue
		}
		if p.InlineData != nil && len(p.InlineData.Data) > 0 {
			out = append(out, creative.Part{Image: &ad.Image{Data: p.InlineData.Data, MIMEType: p.InlineData.MIMEType}})
			continue
		}
		if p.Text != "" {
			out = append(out, creative.Part{Text: p.Text})
		}
	}
	return out
}

func blockReason(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "blocked: " + string(resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) > 0 {
		reason := resp.Candidates[0].FinishReason
		if reason != "" && reason != genai.FinishReasonStop {
			return "finish reason: " + string(reason)
		}
	}
	return ""
}
