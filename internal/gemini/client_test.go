package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adstudio/internal/ad"
	"adstudio/internal/creative"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{
		APIKey:       "test-key",
		BaseURL:      srv.URL,
		ConceptModel: "concept-model",
		ImageModel:   "image-model",
		HTTPClient:   srv.Client(),
	})
}

func decodeRequest(t *testing.T, r *http.Request) generateContentRequest {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var req generateContentRequest
	require.NoError(t, json.Unmarshal(body, &req))
	return req
}

func TestGenerateStructured(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var got generateContentRequest
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1beta/models/concept-model:generateContent", r.URL.Path)
			assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
			got = decodeRequest(t, r)
			_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"thinking","thought":true},{"text":" [{\"concept\":\"a\"}] "}]}}]}`)
		})

		raw, err := c.GenerateStructured(context.Background(), creative.StructuredRequest{
			Prompt:      "make concepts",
			Images:      []ad.Image{{Data: []byte("png"), MIMEType: ad.MIMEPNG}},
			Schema:      creative.BatchSchema(),
			Temperature: 0.8,
		})
		require.NoError(t, err)
		assert.Equal(t, `[{"concept":"a"}]`, string(raw))

		require.Len(t, got.Contents, 1)
		parts := got.Contents[0].Parts
		require.Len(t, parts, 2)
		assert.Equal(t, "make concepts", parts[0].Text)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png")), parts[1].InlineData.Data)
		assert.Equal(t, "application/json", got.GenerationConfig.ResponseMimeType)
		require.NotNil(t, got.GenerationConfig.Temperature)
		assert.Equal(t, 0.8, *got.GenerationConfig.Temperature)
		require.NotNil(t, got.GenerationConfig.ResponseSchema)
		assert.Equal(t, "ARRAY", got.GenerationConfig.ResponseSchema.Type)
		assert.Equal(t, "OBJECT", got.GenerationConfig.ResponseSchema.Items.Type)
		assert.Contains(t, got.GenerationConfig.ResponseSchema.Items.Properties, "headlineSuggestion")
	})

	t.Run("Failure/APIError", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"error":{"code":429,"message":"Resource has been exhausted"}}`)
		})

		_, err := c.GenerateStructured(context.Background(), creative.StructuredRequest{Prompt: "x"})
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
		assert.Contains(t, err.Error(), "Resource has been exhausted")
	})

	t.Run("Failure/Blocked", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
		})
		_, err := c.GenerateStructured(context.Background(), creative.StructuredRequest{Prompt: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SAFETY")
	})
}

func TestGenerateImage(t *testing.T) {
	imageData := base64.StdEncoding.EncodeToString([]byte("rendered"))

	t.Run("Success", func(t *testing.T) {
		var got generateContentRequest
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1beta/models/image-model:generateContent", r.URL.Path)
			got = decodeRequest(t, r)
			_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"Here it is"},{"inlineData":{"mimeType":"image/png","data":"`+imageData+`"}}]}}]}`)
		})

		parts, err := c.GenerateImage(context.Background(), creative.ImageRequest{
			Prompt:      "draw",
			Images:      []ad.Image{{Data: []byte("p"), MIMEType: ad.MIMEPNG}, {Data: []byte("l"), MIMEType: ad.MIMEJPEG}},
			AspectRatio: "1:1",
		})
		require.NoError(t, err)
		img, err := creative.FirstImage(parts)
		require.NoError(t, err)
		assert.Equal(t, []byte("rendered"), img.Data)

		assert.Equal(t, []string{"IMAGE"}, got.GenerationConfig.ResponseModalities)
		require.NotNil(t, got.GenerationConfig.ImageConfig)
		assert.Equal(t, "1:1", got.GenerationConfig.ImageConfig.AspectRatio)
		require.Len(t, got.Contents[0].Parts, 3)
		assert.Equal(t, ad.MIMEJPEG, got.Contents[0].Parts[2].InlineData.MimeType)
		assert.Nil(t, got.GenerationConfig.Temperature)
	})

	t.Run("Success/RetriesWithoutImageConfig", func(t *testing.T) {
		calls := 0
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls++
			req := decodeRequest(t, r)
			if req.GenerationConfig.ImageConfig != nil {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"error":{"message":"Invalid JSON payload received. Unknown name \"imageConfig\" at 'generation_config'"}}`)
				return
			}
			_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"`+imageData+`"}}]}}]}`)
		})

		parts, err := c.GenerateImage(context.Background(), creative.ImageRequest{Prompt: "draw", AspectRatio: "1:1"})
		require.NoError(t, err)
		assert.Len(t, parts, 1)
		assert.Equal(t, 2, calls)
	})

	t.Run("Failure/NoImage", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[]},"finishReason":"IMAGE_SAFETY"}]}`)
		})
		_, err := c.GenerateImage(context.Background(), creative.ImageRequest{Prompt: "draw"})
		assert.ErrorIs(t, err, creative.ErrNoImageData)
		assert.Contains(t, err.Error(), "IMAGE_SAFETY")
	})
}
