package view

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"adstudio/internal/ad"
)

var (
	ErrInvalidTransition = errors.New("action is not available in the current view")
	ErrBusy              = errors.New("a variant is already being regenerated")
)

const interruptedMessage = "Generation was interrupted. Please try again."

type Generator interface {
	GenerateAdVariants(ctx context.Context, product ad.ProductInfo, feedback string) ([]ad.Variant, error)
	RegenerateSingleAdVariant(ctx context.Context, product ad.ProductInfo, original ad.Variant, feedback string) (ad.Variant, error)
}

type EventType string

const (
	EventSubmitted       EventType = "submitted"
	EventRegenerating    EventType = "regenerating"
	EventGenerated       EventType = "generated"
	EventFailed          EventType = "failed"
	EventVariantStarted  EventType = "variant_regenerating"
	EventVariantReplaced EventType = "variant_replaced"
	EventVariantFailed   EventType = "variant_failed"
	EventNoticeCleared   EventType = "notice_cleared"
	EventReset           EventType = "reset"
	EventRestored        EventType = "restored"
)

// Event is emitted after every transition. Index is -1 unless the event is
// about one variant.
type Event struct {
	Type  EventType
	Index int
	State State
}

type Options struct {
	Generator Generator
	// Timeout bounds one generation call. Zero means no local bound.
	Timeout time.Duration
	// OnChange receives every transition in order. It must not call back
	// into transitions of the same machine.
	OnChange func(Event)
	// Run starts a completion task. Defaults to a new goroutine.
	Run    func(task func())
	Logger *slog.Logger
}

type Machine struct {
	generator Generator
	timeout   time.Duration
	onChange  func(Event)
	run       func(task func())
	logger    *slog.Logger

	mu       sync.Mutex
	notifyMu sync.Mutex
	state    State
	epoch    uint64
}

func New(opts Options) *Machine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	run := opts.Run
	if run == nil {
		run = func(task func()) { go task() }
	}
	return &Machine{
		generator: opts.Generator,
		timeout:   opts.Timeout,
		onChange:  opts.OnChange,
		run:       run,
		logger:    logger,
		state:     Form{},
	}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Submit starts the first batch for product. A product failing validation is
// rejected without leaving Form.
func (m *Machine) Submit(ctx context.Context, product ad.ProductInfo) error {
	product = product.Normalize()
	if err := product.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if _, ok := m.state.(Form); !ok {
		m.mu.Unlock()
		return fmt.Errorf("submit from %s: %w", m.state.Kind(), ErrInvalidTransition)
	}
	next := Loading{Product: product}
	token := m.setLocked(next)
	m.commit(Event{Type: EventSubmitted, Index: -1, State: next})

	m.startBatch(ctx, token, product, "", false)
	return nil
}

// RegenerateAll discards the current collection and runs a new batch with
// feedback.
func (m *Machine) RegenerateAll(ctx context.Context, feedback string) error {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return errFeedbackRequired
	}

	m.mu.Lock()
	results, ok := m.state.(Results)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("regenerate from %s: %w", m.state.Kind(), ErrInvalidTransition)
	}
	if results.Busy() {
		m.mu.Unlock()
		return ErrBusy
	}
	next := Loading{Product: results.Product, Feedback: feedback, Regenerate: true}
	token := m.setLocked(next)
	m.commit(Event{Type: EventRegenerating, Index: -1, State: next})

	m.startBatch(ctx, token, results.Product, feedback, true)
	return nil
}

// RegenerateOne replaces the variant at index while the rest of the results
// stay visible. Only one single regeneration may be in flight.
func (m *Machine) RegenerateOne(ctx context.Context, index int, feedback string) error {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return errFeedbackRequired
	}

	m.mu.Lock()
	results, ok := m.state.(Results)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("regenerate variant from %s: %w", m.state.Kind(), ErrInvalidTransition)
	}
	if results.Busy() {
		m.mu.Unlock()
		return ErrBusy
	}
	if index < 0 || index >= len(results.Variants) {
		m.mu.Unlock()
		return fmt.Errorf("variant %d out of range: %w", index, ErrInvalidTransition)
	}

	original := results.Variants[index]
	results = results.clone().(Results)
	results.Regenerating = &index
	results.Notice = ""
	m.state = results
	token := m.epoch
	m.commit(Event{Type: EventVariantStarted, Index: index, State: results.clone()})

	product := results.Product
	m.run(func() {
		ctx, cancel := m.taskContext(ctx)
		defer cancel()

		variant, err := m.generator.RegenerateSingleAdVariant(ctx, product, original, feedback)
		m.finishSingle(token, index, variant, err)
	})
	return nil
}

// Reset returns to an empty Form. Resetting Form is a no-op.
func (m *Machine) Reset() error {
	m.mu.Lock()
	switch s := m.state.(type) {
	case Form:
		m.mu.Unlock()
		return nil
	case Loading:
		m.mu.Unlock()
		return fmt.Errorf("reset from %s: %w", s.Kind(), ErrInvalidTransition)
	case Results:
		if s.Busy() {
			m.mu.Unlock()
			return ErrBusy
		}
	}
	m.setLocked(Form{})
	m.commit(Event{Type: EventReset, Index: -1, State: Form{}})
	return nil
}

// DismissNotice clears the message left by a failed single regeneration.
func (m *Machine) DismissNotice() {
	m.mu.Lock()
	results, ok := m.state.(Results)
	if !ok || results.Notice == "" {
		m.mu.Unlock()
		return
	}
	results = results.clone().(Results)
	results.Notice = ""
	m.state = results
	m.commit(Event{Type: EventNoticeCleared, Index: -1, State: results.clone()})
}

func (m *Machine) startBatch(ctx context.Context, token uint64, product ad.ProductInfo, feedback string, regenerate bool) {
	m.run(func() {
		ctx, cancel := m.taskContext(ctx)
		defer cancel()

		variants, err := m.generator.GenerateAdVariants(ctx, product, feedback)
		m.finishBatch(token, product, variants, err, regenerate)
	})
}

func (m *Machine) finishBatch(token uint64, product ad.ProductInfo, variants []ad.Variant, err error, regenerate bool) {
	m.mu.Lock()
	if token != m.epoch {
		m.mu.Unlock()
		m.logger.Debug("dropping stale batch result")
		return
	}

	if err != nil {
		prefix := "Failed to generate ads."
		if regenerate {
			prefix = "Failed to regenerate ads."
		}
		next := Failed{Message: prefix + " Please try again. Error: " + err.Error()}
		m.setLocked(next)
		m.commit(Event{Type: EventFailed, Index: -1, State: next})
		m.logger.Warn("batch generation failed", "regenerate", regenerate, "err", err)
		return
	}

	next := Results{Product: product, Variants: variants}
	m.setLocked(next)
	m.commit(Event{Type: EventGenerated, Index: -1, State: next.clone()})
}

func (m *Machine) finishSingle(token uint64, index int, variant ad.Variant, err error) {
	m.mu.Lock()
	results, ok := m.state.(Results)
	if token != m.epoch || !ok || results.Regenerating == nil || *results.Regenerating != index {
		m.mu.Unlock()
		m.logger.Debug("dropping stale variant result", "index", index)
		return
	}

	results = results.clone().(Results)
	results.Regenerating = nil
	if err != nil {
		results.Notice = err.Error()
		m.state = results
		m.commit(Event{Type: EventVariantFailed, Index: index, State: results.clone()})
		m.logger.Warn("variant regeneration failed", "index", index, "err", err)
		return
	}

	results.Variants[index] = variant
	m.state = results
	m.commit(Event{Type: EventVariantReplaced, Index: index, State: results.clone()})
}

// taskContext keeps request values but not request cancellation, since a
// generation outlives the call that started it.
func (m *Machine) taskContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx := context.WithoutCancel(parent)
	if m.timeout > 0 {
		return context.WithTimeout(ctx, m.timeout)
	}
	return context.WithCancel(ctx)
}

// setLocked replaces the state and invalidates every pending completion.
func (m *Machine) setLocked(next State) uint64 {
	m.state = next
	m.epoch++
	return m.epoch
}

// commit must be called with mu held. It releases mu and delivers ev in
// transition order.
func (m *Machine) commit(ev Event) {
	m.notifyMu.Lock()
	m.mu.Unlock()
	defer m.notifyMu.Unlock()
	if m.onChange != nil {
		m.onChange(ev)
	}
}

var errFeedbackRequired = &ad.ValidationError{Field: "feedback", Message: "Please describe what you would like to change."}
