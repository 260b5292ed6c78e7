package ad

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Concept is the structured text produced for one variant before rendering.
type Concept struct {
	Concept            string `json:"concept"`
	HeadlineSuggestion string `json:"headlineSuggestion"`
	OverlayText        string `json:"overlayText"`
}

// Variant is one finished ad: the concept it was rendered from plus the image.
type Variant struct {
	Concept            string `json:"concept"`
	HeadlineSuggestion string `json:"headlineSuggestion"`
	OverlayText        string `json:"overlayText"`
	Image              Image  `json:"image"`
}

func NewVariant(c Concept, img Image) Variant {
	return Variant{
		Concept:            c.Concept,
		HeadlineSuggestion: c.HeadlineSuggestion,
		OverlayText:        c.OverlayText,
		Image:              img,
	}
}

func (v Variant) AsConcept() Concept {
	return Concept{
		Concept:            v.Concept,
		HeadlineSuggestion: v.HeadlineSuggestion,
		OverlayText:        v.OverlayText,
	}
}

const maxSlugLen = 50

var nonWord = regexp.MustCompile(`[\s\W]+`)

// FileName is the suggested download name, derived from the headline.
func (v Variant) FileName() string {
	ext := ".png"
	if v.Image.MIMEType == MIMEJPEG {
		ext = ".jpg"
	}
	return "ad-variant-" + Slug(v.HeadlineSuggestion) + ext
}

func Slug(text string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), text)
	if err != nil {
		folded = text
	}
	slug := nonWord.ReplaceAllString(strings.ToLower(folded), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		return "ad"
	}
	return slug
}
