package handlers

import (
	"strings"
	"sync"
	"time"

	"adstudio/internal/ad"
)

// Draft is the chat-side form: what the user has sent so far, plus the
// message ids the conversation needs to edit later.
type Draft struct {
	Name        string
	Description string
	Audience    string
	OverlayText string
	Image       ad.Image
	Logo        *ad.Image

	// OwnerID is the user whose buttons drive this chat's keyboards.
	OwnerID          int64
	StyleMessageID   int
	ControlMessageID int
	VariantMessages  []int

	AwaitingFeedback bool
	// FeedbackIndex is the variant awaiting feedback, or -1 for the batch.
	FeedbackIndex int

	UpdatedAt time.Time
}

func (d *Draft) apply(f captionFields) {
	if f.Name != "" {
		d.Name = f.Name
	}
	if f.Description != "" {
		d.Description = f.Description
	}
	if f.Audience != "" {
		d.Audience = f.Audience
	}
	if f.HasOverlay {
		d.OverlayText = f.OverlayText
	}
}

func (d Draft) complete() bool {
	return strings.TrimSpace(d.Name) != "" &&
		strings.TrimSpace(d.Description) != "" &&
		strings.TrimSpace(d.Audience) != "" &&
		!d.Image.Empty()
}

func (d Draft) Product(style ad.Style) ad.ProductInfo {
	p := ad.ProductInfo{
		Name:        d.Name,
		Description: d.Description,
		Audience:    d.Audience,
		Style:       style,
		OverlayText: d.OverlayText,
		Image:       d.Image,
	}
	if d.Logo != nil {
		logo := *d.Logo
		p.Logo = &logo
	}
	return p.Normalize()
}

type DraftStore struct {
	mu sync.Mutex
	m  map[int64]*Draft
}

func NewDraftStore() *DraftStore {
	return &DraftStore{m: make(map[int64]*Draft)}
}

func (s *DraftStore) Get(chatID int64) Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(chatID).copy()
}

func (s *DraftStore) Update(chatID int64, fn func(*Draft)) Draft {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.getOrCreateLocked(chatID)
	if fn != nil {
		fn(d)
	}
	d.UpdatedAt = time.Now()
	return d.copy()
}

// Reset forgets the form and every tracked message.
func (s *DraftStore) Reset(chatID int64) Draft {
	return s.Update(chatID, func(d *Draft) {
		*d = defaultDraft()
	})
}

// Sweep drops drafts untouched since before cutoff.
func (s *DraftStore) Sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, d := range s.m {
		if d.UpdatedAt.Before(cutoff) {
			delete(s.m, id)
			n++
		}
	}
	return n
}

func (s *DraftStore) getOrCreateLocked(chatID int64) *Draft {
	if d, ok := s.m[chatID]; ok {
		return d
	}
	d := defaultDraft()
	s.m[chatID] = &d
	return s.m[chatID]
}

func (d *Draft) copy() Draft {
	out := *d
	out.VariantMessages = append([]int(nil), d.VariantMessages...)
	return out
}

func defaultDraft() Draft {
	return Draft{
		FeedbackIndex: -1,
		UpdatedAt:     time.Now(),
	}
}
