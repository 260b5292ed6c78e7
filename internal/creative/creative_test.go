package creative

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adstudio/internal/ad"
)

func testProduct() ad.ProductInfo {
	return ad.ProductInfo{
		Name:        "Aurora Lamp",
		Description: "A dimmable desk lamp",
		Audience:    "Remote workers",
		Style:       ad.StyleDarkMoody,
		Image:       ad.Image{Data: []byte("product"), MIMEType: ad.MIMEPNG},
	}
}

const threeConcepts = `[
 {"concept":"Dark & Moody lamp on slate","headlineSuggestion":"Own the Night","overlayText":"Glow On"},
 {"concept":"Dark & Moody desk at midnight","headlineSuggestion":"Late Hours, Lit","overlayText":"Stay Bright"},
 {"concept":"Dark & Moody smoke and beam","headlineSuggestion":"Cut the Dark","overlayText":"Pure Focus"}
]`

func structuredStub(answer string, err error, seen *StructuredRequest) Capability {
	return CapabilityFuncs{
		Structured: func(_ context.Context, req StructuredRequest) ([]byte, error) {
			if seen != nil {
				*seen = req
			}
			return []byte(answer), err
		},
	}
}

func TestGeneratorConcepts(t *testing.T) {
	ctx := context.Background()

	t.Run("Success/StylePassThrough", func(t *testing.T) {
		var req StructuredRequest
		g := NewGenerator(structuredStub(threeConcepts, nil, &req), GeneratorOptions{ConceptTemperature: 0.8, RegenerateTemperature: 0.95})

		concepts, err := g.Concepts(ctx, testProduct(), "")
		require.NoError(t, err)
		require.Len(t, concepts, BatchSize)
		for _, c := range concepts {
			assert.True(t, strings.HasPrefix(c.Concept, string(ad.StyleDarkMoody)))
		}
		assert.Equal(t, "Own the Night", concepts[0].HeadlineSuggestion)
		assert.Equal(t, 0.8, req.Temperature)
		assert.Contains(t, req.Prompt, "**Dark & Moody**")
		assert.NotContains(t, req.Prompt, "DO NOT repeat")
		assert.Equal(t, TypeArray, req.Schema.Type)
		assert.ElementsMatch(t, []string{"concept", "headlineSuggestion", "overlayText"}, req.Schema.Items.Required)
		require.Len(t, req.Images, 1)
		assert.Equal(t, []byte("product"), req.Images[0].Data)
	})

	t.Run("Success/CustomOverlayEnforced", func(t *testing.T) {
		var req StructuredRequest
		g := NewGenerator(structuredStub(threeConcepts, nil, &req), GeneratorOptions{})
		product := testProduct()
		product.OverlayText = `Say "Hi" 50%`

		concepts, err := g.Concepts(ctx, product, "")
		require.NoError(t, err)
		for _, c := range concepts {
			assert.Equal(t, `Say "Hi" 50%`, c.OverlayText)
		}
		assert.Contains(t, req.Prompt, `Say "Hi" 50%`)
	})

	t.Run("Success/FeedbackRaisesDiversity", func(t *testing.T) {
		var req StructuredRequest
		g := NewGenerator(structuredStub(threeConcepts, nil, &req), GeneratorOptions{ConceptTemperature: 0.8, RegenerateTemperature: 0.5})

		_, err := g.Concepts(ctx, testProduct(), "more blue")
		require.NoError(t, err)
		assert.InDelta(t, 0.9, req.Temperature, 1e-9)
		assert.Contains(t, req.Prompt, "DO NOT repeat ideas from the previous attempt")
		assert.Contains(t, req.Prompt, `Feedback: "more blue"`)
	})

	t.Run("Success/FencedJSON", func(t *testing.T) {
		g := NewGenerator(structuredStub("```json\n"+threeConcepts+"\n```", nil, nil), GeneratorOptions{})
		concepts, err := g.Concepts(ctx, testProduct(), "")
		require.NoError(t, err)
		assert.Len(t, concepts, BatchSize)
	})

	t.Run("Failure/Empty", func(t *testing.T) {
		g := NewGenerator(structuredStub("[]", nil, nil), GeneratorOptions{})
		_, err := g.Concepts(ctx, testProduct(), "")
		assert.ErrorIs(t, err, ErrNoConcepts)
	})

	t.Run("Failure/WrongCount", func(t *testing.T) {
		g := NewGenerator(structuredStub(`[{"concept":"a","headlineSuggestion":"b","overlayText":"c"}]`, nil, nil), GeneratorOptions{})
		_, err := g.Concepts(ctx, testProduct(), "")
		assert.ErrorIs(t, err, ErrSchema)
	})

	t.Run("Failure/MissingField", func(t *testing.T) {
		answer := `[{"concept":"a","headlineSuggestion":"b"},{"concept":"a","headlineSuggestion":"b","overlayText":"c"},{"concept":"a","headlineSuggestion":"b","overlayText":"c"}]`
		g := NewGenerator(structuredStub(answer, nil, nil), GeneratorOptions{})
		_, err := g.Concepts(ctx, testProduct(), "")
		assert.ErrorIs(t, err, ErrSchema)
	})

	t.Run("Failure/NotJSON", func(t *testing.T) {
		g := NewGenerator(structuredStub("sorry, I can't", nil, nil), GeneratorOptions{})
		_, err := g.Concepts(ctx, testProduct(), "")
		assert.ErrorIs(t, err, ErrSchema)
	})

	t.Run("Failure/Transport", func(t *testing.T) {
		boom := errors.New("connection reset")
		g := NewGenerator(structuredStub("", boom, nil), GeneratorOptions{})
		_, err := g.Concepts(ctx, testProduct(), "")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Failure/InvalidProductNeverCalls", func(t *testing.T) {
		called := false
		g := NewGenerator(CapabilityFuncs{Structured: func(context.Context, StructuredRequest) ([]byte, error) {
			called = true
			return nil, nil
		}}, GeneratorOptions{})
		product := testProduct()
		product.Image = ad.Image{}

		_, err := g.Concepts(ctx, product, "")
		assert.ErrorIs(t, err, ad.ErrValidation)
		assert.False(t, called)
	})
}

func TestGeneratorSingleConcept(t *testing.T) {
	ctx := context.Background()
	original := ad.Concept{Concept: "lamp on slate", HeadlineSuggestion: "Own the Night", OverlayText: "Glow On"}

	t.Run("Success/Object", func(t *testing.T) {
		var req StructuredRequest
		g := NewGenerator(structuredStub(`{"concept":"lamp in fog","headlineSuggestion":"Find Focus","overlayText":"Clear Mind"}`, nil, &req), GeneratorOptions{ConceptTemperature: 0.8, RegenerateTemperature: 0.95})

		c, err := g.SingleConcept(ctx, testProduct(), original, "less gloomy")
		require.NoError(t, err)
		assert.Equal(t, "lamp in fog", c.Concept)
		assert.Equal(t, 0.95, req.Temperature)
		assert.Equal(t, TypeObject, req.Schema.Type)
		assert.Contains(t, req.Prompt, "for context, do not repeat this")
		assert.Contains(t, req.Prompt, "Original Visual Idea:** lamp on slate")
		assert.Contains(t, req.Prompt, "Original Headline:** Own the Night")
		assert.Contains(t, req.Prompt, `Feedback: "less gloomy"`)
	})

	t.Run("Success/ArrayOfOne", func(t *testing.T) {
		g := NewGenerator(structuredStub(`[{"concept":"x","headlineSuggestion":"y","overlayText":"z"}]`, nil, nil), GeneratorOptions{})
		c, err := g.SingleConcept(ctx, testProduct(), original, "again")
		require.NoError(t, err)
		assert.Equal(t, "y", c.HeadlineSuggestion)
	})

	t.Run("Success/CustomOverlayEnforced", func(t *testing.T) {
		g := NewGenerator(structuredStub(`{"concept":"x","headlineSuggestion":"y","overlayText":"made up"}`, nil, nil), GeneratorOptions{})
		product := testProduct()
		product.OverlayText = "Only Today"
		c, err := g.SingleConcept(ctx, product, original, "again")
		require.NoError(t, err)
		assert.Equal(t, "Only Today", c.OverlayText)
	})

	for name, answer := range map[string]string{"Null": "null", "EmptyArray": "[]", "Blank": "  "} {
		t.Run("Failure/"+name, func(t *testing.T) {
			g := NewGenerator(structuredStub(answer, nil, nil), GeneratorOptions{})
			_, err := g.SingleConcept(ctx, testProduct(), original, "again")
			assert.ErrorIs(t, err, ErrNoConcepts)
		})
	}

	t.Run("Failure/EmptyObject", func(t *testing.T) {
		g := NewGenerator(structuredStub(`{}`, nil, nil), GeneratorOptions{})
		_, err := g.SingleConcept(ctx, testProduct(), original, "again")
		assert.ErrorIs(t, err, ErrSchema)
	})
}

func TestRenderer(t *testing.T) {
	ctx := context.Background()
	concept := ad.Concept{Concept: "lamp on slate", HeadlineSuggestion: "Own the Night", OverlayText: "Glow On"}

	t.Run("Success/FirstImagePart", func(t *testing.T) {
		var req ImageRequest
		r := NewRenderer(CapabilityFuncs{Image: func(_ context.Context, got ImageRequest) ([]Part, error) {
			req = got
			return []Part{
				{Text: "here you go"},
				{Image: &ad.Image{Data: []byte("{}"), MIMEType: "application/json"}},
				{Image: &ad.Image{Data: []byte("img1"), MIMEType: "image/png"}},
				{Image: &ad.Image{Data: []byte("img2"), MIMEType: "image/png"}},
			}, nil
		}})
		product := testProduct()
		product.Logo = &ad.Image{Data: []byte("logo"), MIMEType: ad.MIMEJPEG}

		img, err := r.Render(ctx, product, concept)
		require.NoError(t, err)
		assert.Equal(t, []byte("img1"), img.Data)
		assert.Equal(t, "1:1", req.AspectRatio)
		require.Len(t, req.Images, 2)
		assert.Equal(t, []byte("product"), req.Images[0].Data)
		assert.Equal(t, []byte("logo"), req.Images[1].Data)
		assert.Contains(t, req.Prompt, `"Glow On"`)
		assert.Contains(t, req.Prompt, "Logo Integration")
		assert.Contains(t, req.Prompt, "1:1 aspect ratio")
	})

	t.Run("Success/NoLogo", func(t *testing.T) {
		var req ImageRequest
		r := NewRenderer(CapabilityFuncs{Image: func(_ context.Context, got ImageRequest) ([]Part, error) {
			req = got
			return []Part{{Image: &ad.Image{Data: []byte("img")}}}, nil
		}})
		img, err := r.Render(ctx, testProduct(), concept)
		require.NoError(t, err)
		assert.Equal(t, ad.MIMEPNG, img.MIMEType)
		assert.Len(t, req.Images, 1)
		assert.NotContains(t, req.Prompt, "Logo Integration")
	})

	t.Run("Failure/NoImageData", func(t *testing.T) {
		r := NewRenderer(CapabilityFuncs{Image: func(context.Context, ImageRequest) ([]Part, error) {
			return []Part{{Text: "I cannot draw that"}}, nil
		}})
		_, err := r.Render(ctx, testProduct(), concept)
		assert.ErrorIs(t, err, ErrNoImageData)
	})
}

func TestNewGeneratorTemperatures(t *testing.T) {
	t.Run("Success/Defaults", func(t *testing.T) {
		g := NewGenerator(nil, GeneratorOptions{})
		assert.Equal(t, DefaultConceptTemperature, g.baseTemp)
		assert.Equal(t, DefaultRegenerateTemperature, g.regenTemp)
	})

	t.Run("Success/ConceptAtModelMaximum", func(t *testing.T) {
		g := NewGenerator(nil, GeneratorOptions{ConceptTemperature: 2, RegenerateTemperature: 2})
		assert.Equal(t, MaxConceptTemperature, g.baseTemp)
		assert.Greater(t, g.regenTemp, g.baseTemp)
		assert.LessOrEqual(t, g.regenTemp, 2.0)
	})
}
