package view

import (
	"fmt"

	"adstudio/internal/ad"
)

// Snapshot is the serialisable form of a State.
type Snapshot struct {
	Kind         Kind            `json:"kind"`
	Product      *ad.ProductInfo `json:"product,omitempty"`
	Feedback     string          `json:"feedback,omitempty"`
	Regenerate   bool            `json:"regenerate,omitempty"`
	Variants     []ad.Variant    `json:"variants,omitempty"`
	Regenerating *int            `json:"regenerating,omitempty"`
	Notice       string          `json:"notice,omitempty"`
	Message      string          `json:"message,omitempty"`
}

func SnapshotOf(state State) Snapshot {
	switch s := state.(type) {
	case Loading:
		product := s.Product
		return Snapshot{Kind: KindLoading, Product: &product, Feedback: s.Feedback, Regenerate: s.Regenerate}
	case Results:
		s = s.clone().(Results)
		product := s.Product
		return Snapshot{Kind: KindResults, Product: &product, Variants: s.Variants, Regenerating: s.Regenerating, Notice: s.Notice}
	case Failed:
		return Snapshot{Kind: KindError, Message: s.Message}
	default:
		return Snapshot{Kind: KindForm}
	}
}

// State rebuilds the view. Work that was in flight when the snapshot was
// taken cannot be resumed: Loading becomes Failed and a pending single
// regeneration is dropped.
func (s Snapshot) State() (State, error) {
	switch s.Kind {
	case KindForm, "":
		return Form{}, nil
	case KindLoading:
		return Failed{Message: interruptedMessage}, nil
	case KindResults:
		if s.Product == nil || len(s.Variants) == 0 {
			return nil, fmt.Errorf("results snapshot without product or variants")
		}
		return Results{
			Product:  *s.Product,
			Variants: append([]ad.Variant(nil), s.Variants...),
			Notice:   s.Notice,
		}, nil
	case KindError:
		return Failed{Message: s.Message}, nil
	default:
		return nil, fmt.Errorf("unknown view kind %q", s.Kind)
	}
}

func (m *Machine) Snapshot() Snapshot {
	return SnapshotOf(m.State())
}

// Restore replaces the current view with a saved one.
func (m *Machine) Restore(snap Snapshot) error {
	state, err := snap.State()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.setLocked(state)
	m.commit(Event{Type: EventRestored, Index: -1, State: state.clone()})
	return nil
}
