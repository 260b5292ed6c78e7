package webapi

import (
	"fmt"

	"adstudio/internal/ad"
	"adstudio/internal/view"
)

type apiError struct {
	Error string `json:"error"`
}

type feedbackRequest struct {
	Feedback string `json:"feedback"`
}

type productDTO struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Audience    string   `json:"audience"`
	Style       ad.Style `json:"style"`
	StyleKey    string   `json:"styleKey"`
	OverlayText string   `json:"overlayText,omitempty"`
	Image       string   `json:"image"`
	Logo        string   `json:"logo,omitempty"`
}

type variantDTO struct {
	Index              int    `json:"index"`
	Concept            string `json:"concept"`
	HeadlineSuggestion string `json:"headlineSuggestion"`
	OverlayText        string `json:"overlayText"`
	Image              string `json:"image"`
	FileName           string `json:"fileName"`
	DownloadURL        string `json:"downloadUrl"`
}

// stateDTO is the browser view of a view.Snapshot: images travel as data URLs.
type stateDTO struct {
	Kind         view.Kind    `json:"kind"`
	Product      *productDTO  `json:"product,omitempty"`
	Feedback     string       `json:"feedback,omitempty"`
	Regenerate   bool         `json:"regenerate,omitempty"`
	Variants     []variantDTO `json:"variants,omitempty"`
	Regenerating *int         `json:"regenerating,omitempty"`
	Notice       string       `json:"notice,omitempty"`
	Message      string       `json:"message,omitempty"`
}

type eventDTO struct {
	Event view.EventType `json:"event"`
	Index int            `json:"index"`
	State stateDTO       `json:"state"`
}

func toStateDTO(snap view.Snapshot) stateDTO {
	out := stateDTO{
		Kind:         snap.Kind,
		Feedback:     snap.Feedback,
		Regenerate:   snap.Regenerate,
		Regenerating: snap.Regenerating,
		Notice:       snap.Notice,
		Message:      snap.Message,
	}
	if snap.Product != nil {
		p := toProductDTO(*snap.Product)
		out.Product = &p
	}
	for i, v := range snap.Variants {
		out.Variants = append(out.Variants, variantDTO{
			Index:              i,
			Concept:            v.Concept,
			HeadlineSuggestion: v.HeadlineSuggestion,
			OverlayText:        v.OverlayText,
			Image:              v.Image.DataURL(),
			FileName:           v.FileName(),
			DownloadURL:        fmt.Sprintf("/api/variants/%d/image", i),
		})
	}
	return out
}

func toProductDTO(p ad.ProductInfo) productDTO {
	out := productDTO{
		Name:        p.Name,
		Description: p.Description,
		Audience:    p.Audience,
		Style:       p.Style,
		StyleKey:    p.Style.Key(),
		OverlayText: p.OverlayText,
		Image:       p.Image.DataURL(),
	}
	if p.HasLogo() {
		out.Logo = p.Logo.DataURL()
	}
	return out
}

func toEventDTO(ev view.Event) eventDTO {
	return eventDTO{
		Event: ev.Type,
		Index: ev.Index,
		State: toStateDTO(view.SnapshotOf(ev.State)),
	}
}
