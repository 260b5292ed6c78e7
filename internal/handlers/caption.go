package handlers

import (
	"errors"
	"strings"
)

const captionHelp = "Describe the product as:\n" +
	"Name | Description | Target audience | Overlay text (optional)\n\n" +
	"Example:\nAurora Mug | Double-walled ceramic mug that keeps coffee hot | Remote workers | Stay warm"

var errCaptionFormat = errors.New("caption must be Name | Description | Audience [| Overlay text]")

type captionFields struct {
	Name        string
	Description string
	Audience    string
	OverlayText string
	HasOverlay  bool
}

// parseCaption reads "Name | Description | Audience [| Overlay text]". Line
// breaks work as separators too, so a multi-line caption is accepted.
func parseCaption(raw string) (captionFields, error) {
	raw = strings.TrimSpace(raw)
	sep := "|"
	if !strings.Contains(raw, sep) {
		sep = "\n"
	}

	parts := strings.Split(raw, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 3 || len(parts) > 4 {
		return captionFields{}, errCaptionFormat
	}
	for _, p := range parts[:3] {
		if p == "" {
			return captionFields{}, errCaptionFormat
		}
	}

	f := captionFields{
		Name:        parts[0],
		Description: parts[1],
		Audience:    parts[2],
	}
	if len(parts) == 4 && parts[3] != "" {
		f.OverlayText = parts[3]
		f.HasOverlay = true
	}
	return f, nil
}
