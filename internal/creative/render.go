package creative

import (
	"context"
	"errors"
	"strings"

	"adstudio/internal/ad"
)

var ErrNoImageData = errors.New("Image generation failed, no image data received.")

type Renderer struct {
	capability Capability
}

func NewRenderer(capability Capability) *Renderer {
	return &Renderer{capability: capability}
}

// Render produces the square ad image for one concept. The product image is
// always the first grounding image and the logo, when present, the second.
func (r *Renderer) Render(ctx context.Context, product ad.ProductInfo, concept ad.Concept) (ad.Image, error) {
	images := []ad.Image{product.Image}
	if product.HasLogo() {
		images = append(images, *product.Logo)
	}

	parts, err := r.capability.GenerateImage(ctx, ImageRequest{
		Prompt:      BuildVisualPrompt(product, concept.Concept, concept.OverlayText),
		Images:      images,
		AspectRatio: "1:1",
	})
	if err != nil {
		return ad.Image{}, err
	}
	return FirstImage(parts)
}

// FirstImage returns the first part carrying image data.
func FirstImage(parts []Part) (ad.Image, error) {
	for _, p := range parts {
		if p.Image == nil || p.Image.Empty() {
			continue
		}
		mimeType := strings.ToLower(p.Image.MIMEType)
		if mimeType == "" {
			mimeType = ad.MIMEPNG
		}
		if !strings.HasPrefix(mimeType, "image/") {
			continue
		}
		return ad.Image{Data: p.Image.Data, MIMEType: mimeType}, nil
	}
	return ad.Image{}, ErrNoImageData
}
