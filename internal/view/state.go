package view

import "adstudio/internal/ad"

type Kind string

const (
	KindForm    Kind = "FORM"
	KindLoading Kind = "LOADING"
	KindResults Kind = "RESULTS"
	KindError   Kind = "ERROR"
)

// State is one of Form, Loading, Results or Failed.
type State interface {
	Kind() Kind
	clone() State
}

type Form struct{}

// Loading is a batch in flight. Regenerate marks a batch regeneration.
type Loading struct {
	Product    ad.ProductInfo
	Feedback   string
	Regenerate bool
}

// Results holds the displayed collection. Regenerating is the index of the
// single variant being replaced, if any; it only exists inside Results.
type Results struct {
	Product      ad.ProductInfo
	Variants     []ad.Variant
	Regenerating *int
	Notice       string
}

// Failed is the terminal error view; only Reset leaves it.
type Failed struct {
	Message string
}

func (Form) Kind() Kind    { return KindForm }
func (Loading) Kind() Kind { return KindLoading }
func (Results) Kind() Kind { return KindResults }
func (Failed) Kind() Kind  { return KindError }

func (s Form) clone() State    { return s }
func (s Loading) clone() State { return s }
func (s Failed) clone() State  { return s }

func (s Results) clone() State {
	s.Variants = append([]ad.Variant(nil), s.Variants...)
	if s.Regenerating != nil {
		idx := *s.Regenerating
		s.Regenerating = &idx
	}
	return s
}

// Busy reports whether a single regeneration is in flight.
func (s Results) Busy() bool {
	return s.Regenerating != nil
}

func (s Results) RegeneratingIndex() (int, bool) {
	if s.Regenerating == nil {
		return -1, false
	}
	return *s.Regenerating, true
}
