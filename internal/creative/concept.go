package creative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"adstudio/internal/ad"
)

// BatchSize is the number of variants produced by one batch call.
const BatchSize = 3

const (
	DefaultConceptTemperature    = 0.8
	DefaultRegenerateTemperature = 0.95
	// MaxConceptTemperature leaves room for a strictly higher regeneration
	// temperature below the model maximum.
	MaxConceptTemperature = 1.9
	maxTemperature        = 2.0
)

var (
	ErrNoConcepts = errors.New("The AI failed to generate any creative concepts. Please try refining your product description or feedback.")
	ErrSchema     = errors.New("the AI response did not match the expected concept format")
)

type GeneratorOptions struct {
	// ConceptTemperature is used for a first-time batch, RegenerateTemperature
	// whenever feedback is present or a single variant is replaced.
	ConceptTemperature    float64
	RegenerateTemperature float64
	Logger                *slog.Logger
}

type Generator struct {
	capability Capability
	baseTemp   float64
	regenTemp  float64
	logger     *slog.Logger
}

func NewGenerator(capability Capability, opts GeneratorOptions) *Generator {
	baseTemp := opts.ConceptTemperature
	if baseTemp <= 0 {
		baseTemp = DefaultConceptTemperature
	}
	baseTemp = min(baseTemp, MaxConceptTemperature)

	regenerate := opts.RegenerateTemperature
	if regenerate <= 0 {
		regenerate = DefaultRegenerateTemperature
	}
	if regenerate <= baseTemp {
		regenerate = baseTemp + 0.1
	}
	regenerate = min(regenerate, maxTemperature)

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Generator{
		capability: capability,
		baseTemp:   baseTemp,
		regenTemp:  regenerate,
		logger:     logger,
	}
}

// Concepts returns exactly BatchSize concepts for the product. An empty
// answer is ErrNoConcepts, anything else off-schema is ErrSchema.
func (g *Generator) Concepts(ctx context.Context, product ad.ProductInfo, feedback string) ([]ad.Concept, error) {
	if err := product.Validate(); err != nil {
		return nil, err
	}

	temperature := g.baseTemp
	if strings.TrimSpace(feedback) != "" {
		temperature = g.regenTemp
	}

	raw, err := g.capability.GenerateStructured(ctx, StructuredRequest{
		Prompt:      BuildConceptsPrompt(product, feedback, BatchSize),
		Images:      []ad.Image{product.Image},
		Schema:      BatchSchema(),
		Temperature: temperature,
	})
	if err != nil {
		return nil, err
	}

	items, err := decodeConceptList(raw)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNoConcepts
	}
	if len(items) != BatchSize {
		return nil, fmt.Errorf("%w: expected %d concepts, got %d", ErrSchema, BatchSize, len(items))
	}

	concepts := make([]ad.Concept, 0, len(items))
	for i, item := range items {
		c, err := item.concept(product)
		if err != nil {
			return nil, fmt.Errorf("concept %d: %w", i+1, err)
		}
		concepts = append(concepts, c)
	}

	g.logger.Debug("concepts generated", "count", len(concepts), "style", product.Style, "feedback", feedback != "")
	return concepts, nil
}

// SingleConcept returns one replacement concept, contrasting with original.
func (g *Generator) SingleConcept(ctx context.Context, product ad.ProductInfo, original ad.Concept, feedback string) (ad.Concept, error) {
	if err := product.Validate(); err != nil {
		return ad.Concept{}, err
	}

	raw, err := g.capability.GenerateStructured(ctx, StructuredRequest{
		Prompt:      BuildSingleConceptPrompt(product, original, feedback),
		Images:      []ad.Image{product.Image},
		Schema:      SingleSchema(),
		Temperature: g.regenTemp,
	})
	if err != nil {
		return ad.Concept{}, err
	}

	item, err := decodeSingleConcept(raw)
	if err != nil {
		return ad.Concept{}, err
	}
	return item.concept(product)
}

type rawConcept struct {
	Concept            *string `json:"concept"`
	HeadlineSuggestion *string `json:"headlineSuggestion"`
	OverlayText        *string `json:"overlayText"`
}

func (r rawConcept) concept(product ad.ProductInfo) (ad.Concept, error) {
	if r.Concept == nil || r.HeadlineSuggestion == nil || r.OverlayText == nil {
		return ad.Concept{}, fmt.Errorf("%w: missing required field", ErrSchema)
	}
	c := ad.Concept{
		Concept:            strings.TrimSpace(*r.Concept),
		HeadlineSuggestion: strings.TrimSpace(*r.HeadlineSuggestion),
		OverlayText:        strings.TrimSpace(*r.OverlayText),
	}
	if text, ok := product.CustomOverlay(); ok {
		c.OverlayText = text
	}
	if c.Concept == "" || c.HeadlineSuggestion == "" || c.OverlayText == "" {
		return ad.Concept{}, fmt.Errorf("%w: empty required field", ErrSchema)
	}
	return c, nil
}

func decodeConceptList(raw []byte) ([]rawConcept, error) {
	raw = cleanJSON(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var items []rawConcept
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return items, nil
}

// decodeSingleConcept accepts an object, or an array holding exactly one.
func decodeSingleConcept(raw []byte) (rawConcept, error) {
	raw = cleanJSON(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return rawConcept{}, ErrNoConcepts
	}
	if raw[0] == '[' {
		items, err := decodeConceptList(raw)
		if err != nil {
			return rawConcept{}, err
		}
		switch len(items) {
		case 0:
			return rawConcept{}, ErrNoConcepts
		case 1:
			return items[0], nil
		default:
			return rawConcept{}, fmt.Errorf("%w: expected 1 concept, got %d", ErrSchema, len(items))
		}
	}

	var item rawConcept
	if err := json.Unmarshal(raw, &item); err != nil {
		return rawConcept{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return item, nil
}

func cleanJSON(raw []byte) []byte {
	raw = bytes.TrimSpace(raw)
	if bytes.HasPrefix(raw, []byte("```")) {
		raw = bytes.TrimPrefix(raw, []byte("```json"))
		raw = bytes.TrimPrefix(raw, []byte("```"))
		raw = bytes.TrimSuffix(bytes.TrimSpace(raw), []byte("```"))
		raw = bytes.TrimSpace(raw)
	}
	return raw
}
