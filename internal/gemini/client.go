package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"adstudio/internal/ad"
	"adstudio/internal/creative"
)

const (
	defaultConceptModel = "gemini-2.5-pro"
	defaultImageModel   = "gemini-2.5-flash-image"
)

type Options struct {
	APIKey       string
	BaseURL      string
	APIVersion   string
	ConceptModel string
	ImageModel   string
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Client implements creative.Capability over the generateContent REST API.
type Client struct {
	apiKey       string
	baseURL      string
	apiVersion   string
	conceptModel string
	imageModel   string
	httpClient   *http.Client
	logger       *slog.Logger
}

var _ creative.Capability = (*Client)(nil)

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	conceptModel := strings.TrimSpace(opts.ConceptModel)
	if conceptModel == "" {
		conceptModel = defaultConceptModel
	}
	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = defaultImageModel
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		apiKey:       opts.APIKey,
		baseURL:      baseURL,
		apiVersion:   apiVersion,
		conceptModel: conceptModel,
		imageModel:   imageModel,
		httpClient:   opts.HTTPClient,
		logger:       logger,
	}
}

func (c *Client) GenerateStructured(ctx context.Context, req creative.StructuredRequest) ([]byte, error) {
	temperature := req.Temperature
	payload := generateContentRequest{
		Contents: []content{{Role: "user", Parts: buildParts(req.Prompt, req.Images)}},
		GenerationConfig: generationConfig{
			Temperature:      &temperature,
			ResponseMimeType: "application/json",
			ResponseSchema:   toSchema(req.Schema),
		},
	}

	resp, err := c.generateContent(ctx, c.conceptModel, payload)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(resp.text())
	if text == "" {
		if reason := resp.blockReason(); reason != "" {
			return nil, fmt.Errorf("no concept text returned (%s)", reason)
		}
	}
	return []byte(text), nil
}

func (c *Client) GenerateImage(ctx context.Context, req creative.ImageRequest) ([]creative.Part, error) {
	payload := generateContentRequest{
		Contents: []content{{Role: "user", Parts: buildParts(req.Prompt, req.Images)}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"IMAGE"},
		},
	}
	if req.AspectRatio != "" {
		payload.GenerationConfig.ImageConfig = &imageConfig{AspectRatio: req.AspectRatio}
	}

	resp, err := c.generateContent(ctx, c.imageModel, payload)
	if err != nil && payload.GenerationConfig.ImageConfig != nil && isUnknownFieldError(err, "imageConfig") {
		payload.GenerationConfig.ImageConfig = nil
		resp, err = c.generateContent(ctx, c.imageModel, payload)
	}
	if err != nil {
		return nil, err
	}

	parts, err := resp.parts()
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		if reason := resp.blockReason(); reason != "" {
			return nil, fmt.Errorf("%w (%s)", creative.ErrNoImageData, reason)
		}
	}
	return parts, nil
}

func buildParts(prompt string, images []ad.Image) []part {
	parts := []part{{Text: strings.TrimSpace(prompt)}}
	for _, img := range images {
		if img.Empty() {
			continue
		}
		parts = append(parts, part{InlineData: &blob{
			Data:     img.Base64(),
			MimeType: img.MIMEType,
		}})
	}
	return parts
}

func toSchema(s *creative.Schema) *schema {
	if s == nil {
		return nil
	}
	out := &schema{
		Type:        string(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Items:       toSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toSchema(prop)
		}
	}
	return out
}

func (c *Client) generateContent(ctx context.Context, model string, payload generateContentRequest) (generateContentResponse, error) {
	if c.httpClient == nil {
		return generateContentResponse{}, errors.New("http client is nil")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("request: %w", err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("gemini call", "model", model, "status", httpResp.StatusCode, "dur_ms", time.Since(start).Milliseconds())

	if httpResp.StatusCode >= 400 {
		return generateContentResponse{}, &APIError{
			StatusCode: httpResp.StatusCode,
			Status:     httpResp.Status,
			Message:    apiErrorMessage(rawBody),
		}
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return generateContentResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return decoded, nil
}

func (r generateContentResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		if p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

func (r generateContentResponse) parts() ([]creative.Part, error) {
	if len(r.Candidates) == 0 {
		return nil, nil
	}
	var out []creative.Part
	for _, p := range r.Candidates[0].Content.Parts {
		if p.InlineData == nil || p.InlineData.Data == "" {
			if p.Text != "" {
				out = append(out, creative.Part{Text: p.Text})
			}
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			return nil, fmt.Errorf("decode inline data: %w", err)
		}
		out = append(out, creative.Part{Image: &ad.Image{Data: data, MIMEType: p.InlineData.MimeType}})
	}
	return out, nil
}

// blockReason explains an empty answer, if the API said why.
func (r generateContentResponse) blockReason() string {
	if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
		return "blocked: " + r.PromptFeedback.BlockReason
	}
	if len(r.Candidates) > 0 && r.Candidates[0].FinishReason != "" && r.Candidates[0].FinishReason != "STOP" {
		return "finish reason: " + r.Candidates[0].FinishReason
	}
	return ""
}

func isUnknownFieldError(err error, field string) bool {
	message := err.Error()
	return strings.Contains(message, "Unknown name") && strings.Contains(message, field)
}
