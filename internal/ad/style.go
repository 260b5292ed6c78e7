package ad

import "strings"

type Style string

const (
	StyleMinimalist  Style = "Minimalist"
	StyleVibrantBold Style = "Vibrant & Bold"
	StyleElegant     Style = "Elegant & Luxurious"
	StyleNatural     Style = "Natural & Organic"
	StyleFuturistic  Style = "Futuristic & Tech"
	StyleHyperReal   Style = "Hyper Realistic"
	StyleRetro       Style = "Retro & Vintage"
	StyleAbstract    Style = "Abstract & Artistic"
	StyleDarkMoody   Style = "Dark & Moody"
	StylePlayful     Style = "Playful & Whimsical"
)

const DefaultStyle = StyleMinimalist

// StyleOption is one entry of the fixed catalogue. Key is a short ASCII
// token that fits into callback data and form values.
type StyleOption struct {
	Key         string `json:"key"`
	Style       Style  `json:"name"`
	Description string `json:"description"`
}

var styleCatalog = []StyleOption{
	{Key: "minimalist", Style: StyleMinimalist, Description: "Clean, simple, and product-focused."},
	{Key: "vibrant_bold", Style: StyleVibrantBold, Description: "Eye-catching, colorful, and energetic."},
	{Key: "elegant_luxurious", Style: StyleElegant, Description: "Sophisticated, premium, and refined."},
	{Key: "natural_organic", Style: StyleNatural, Description: "Earthy tones, authentic, and calming."},
	{Key: "futuristic_tech", Style: StyleFuturistic, Description: "Sleek, modern, and innovative."},
	{Key: "hyper_realistic", Style: StyleHyperReal, Description: "Ultra-detailed and lifelike visuals."},
	{Key: "retro_vintage", Style: StyleRetro, Description: "Nostalgic, classic, and timeless feel."},
	{Key: "abstract_artistic", Style: StyleAbstract, Description: "Unconventional, creative, and bold."},
	{Key: "dark_moody", Style: StyleDarkMoody, Description: "Dramatic lighting and intense shadows."},
	{Key: "playful_whimsical", Style: StylePlayful, Description: "Fun, lighthearted, and imaginative."},
}

func Styles() []StyleOption {
	out := make([]StyleOption, len(styleCatalog))
	copy(out, styleCatalog)
	return out
}

func (s Style) Valid() bool {
	for _, opt := range styleCatalog {
		if opt.Style == s {
			return true
		}
	}
	return false
}

func (s Style) Key() string {
	if opt, ok := lookupStyle(string(s)); ok {
		return opt.Key
	}
	return ""
}

// ParseStyle accepts either the display name or the key, case-insensitively.
func ParseStyle(raw string) (Style, bool) {
	opt, ok := lookupStyle(raw)
	if !ok {
		return "", false
	}
	return opt.Style, true
}

func lookupStyle(raw string) (StyleOption, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return StyleOption{}, false
	}
	for _, opt := range styleCatalog {
		if strings.EqualFold(raw, opt.Key) || strings.EqualFold(raw, string(opt.Style)) {
			return opt, true
		}
	}
	return StyleOption{}, false
}
