package creative

import (
	"context"

	"adstudio/internal/ad"
)

type SchemaType string

const (
	TypeString SchemaType = "STRING"
	TypeObject SchemaType = "OBJECT"
	TypeArray  SchemaType = "ARRAY"
)

// Schema is the vendor neutral subset of an OpenAPI schema used to constrain
// structured output. Backends translate it to their own representation.
type Schema struct {
	Type        SchemaType
	Description string
	Properties  map[string]*Schema
	Required    []string
	Items       *Schema
}

type StructuredRequest struct {
	Prompt      string
	Images      []ad.Image
	Schema      *Schema
	Temperature float64
}

type ImageRequest struct {
	Prompt      string
	Images      []ad.Image
	AspectRatio string
}

// Part is one piece of a multi-part image response.
type Part struct {
	Text  string
	Image *ad.Image
}

// Capability is the external generative collaborator. GenerateStructured
// returns the raw JSON text of the answer; GenerateImage returns every part of
// the first candidate so the caller decides which one is the image.
type Capability interface {
	GenerateStructured(ctx context.Context, req StructuredRequest) ([]byte, error)
	GenerateImage(ctx context.Context, req ImageRequest) ([]Part, error)
}

// CapabilityFuncs adapts plain functions to Capability.
type CapabilityFuncs struct {
	Structured func(ctx context.Context, req StructuredRequest) ([]byte, error)
	Image      func(ctx context.Context, req ImageRequest) ([]Part, error)
}

func (f CapabilityFuncs) GenerateStructured(ctx context.Context, req StructuredRequest) ([]byte, error) {
	return f.Structured(ctx, req)
}

func (f CapabilityFuncs) GenerateImage(ctx context.Context, req ImageRequest) ([]Part, error) {
	return f.Image(ctx, req)
}

func conceptSchema() *Schema {
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"concept": {
				Type:        TypeString,
				Description: "A descriptive prompt for an AI image generator.",
			},
			"headlineSuggestion": {
				Type:        TypeString,
				Description: "A short headline to complement the visual.",
			},
			"overlayText": {
				Type:        TypeString,
				Description: "A very short, impactful phrase to be placed on the image.",
			},
		},
		Required: []string{"concept", "headlineSuggestion", "overlayText"},
	}
}

// BatchSchema constrains the batch answer to an array of concept objects.
func BatchSchema() *Schema {
	return &Schema{Type: TypeArray, Items: conceptSchema()}
}

func SingleSchema() *Schema {
	return conceptSchema()
}
