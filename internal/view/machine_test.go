package view

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adstudio/internal/ad"
)

type fakeGenerator struct {
	batchCalls  int
	singleCalls int
	batch       func(product ad.ProductInfo, feedback string) ([]ad.Variant, error)
	single      func(original ad.Variant, feedback string) (ad.Variant, error)
}

func (f *fakeGenerator) GenerateAdVariants(_ context.Context, product ad.ProductInfo, feedback string) ([]ad.Variant, error) {
	f.batchCalls++
	return f.batch(product, feedback)
}

func (f *fakeGenerator) RegenerateSingleAdVariant(_ context.Context, _ ad.ProductInfo, original ad.Variant, feedback string) (ad.Variant, error) {
	f.singleCalls++
	return f.single(original, feedback)
}

// taskQueue holds completions until drain so intermediate states are visible.
type taskQueue struct {
	tasks []func()
}

func (q *taskQueue) run(task func()) { q.tasks = append(q.tasks, task) }

func (q *taskQueue) drain() {
	for len(q.tasks) > 0 {
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		task()
	}
}

func product() ad.ProductInfo {
	return ad.ProductInfo{
		Name: "Aurora Lamp", Description: "lamp", Audience: "makers", Style: ad.StyleMinimalist,
		Image: ad.Image{Data: []byte("p"), MIMEType: ad.MIMEPNG},
	}
}

func variants(prefix string) []ad.Variant {
	out := make([]ad.Variant, 3)
	for i := range out {
		name := prefix + string(rune('1'+i))
		out[i] = ad.Variant{Concept: name, HeadlineSuggestion: "h" + name, OverlayText: "o" + name, Image: ad.Image{Data: []byte(name)}}
	}
	return out
}

func newMachine(gen *fakeGenerator) (*Machine, *taskQueue, *[]Event) {
	q := &taskQueue{}
	var events []Event
	m := New(Options{
		Generator: gen,
		Run:       q.run,
		OnChange:  func(ev Event) { events = append(events, ev) },
	})
	return m, q, &events
}

func okGenerator() *fakeGenerator {
	return &fakeGenerator{
		batch: func(_ ad.ProductInfo, feedback string) ([]ad.Variant, error) {
			if feedback != "" {
				return variants("r"), nil
			}
			return variants("v"), nil
		},
		single: func(original ad.Variant, _ string) (ad.Variant, error) {
			return ad.Variant{Concept: "new-" + original.Concept, HeadlineSuggestion: "fresh", OverlayText: "o", Image: ad.Image{Data: []byte("new")}}, nil
		},
	}
}

func inResults(t *testing.T, m *Machine) Results {
	t.Helper()
	results, ok := m.State().(Results)
	require.True(t, ok, "expected RESULTS, got %s", m.State().Kind())
	return results
}

func TestRoundTrip(t *testing.T) {
	gen := okGenerator()
	m, q, events := newMachine(gen)
	ctx := context.Background()

	assert.Equal(t, KindForm, m.State().Kind())

	require.NoError(t, m.Submit(ctx, product()))
	loading, ok := m.State().(Loading)
	require.True(t, ok)
	assert.Equal(t, "Aurora Lamp", loading.Product.Name)
	assert.False(t, loading.Regenerate)

	q.drain()
	results := inResults(t, m)
	assert.Equal(t, variants("v"), results.Variants)
	assert.Nil(t, results.Regenerating)
	assert.Equal(t, "Aurora Lamp", results.Product.Name)

	require.NoError(t, m.Reset())
	assert.Equal(t, Form{}, m.State())
	assert.Equal(t, Snapshot{Kind: KindForm}, m.Snapshot())

	var types []EventType
	for _, ev := range *events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{EventSubmitted, EventGenerated, EventReset}, types)
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("Failure/ValidationKeepsForm", func(t *testing.T) {
		gen := okGenerator()
		m, q, events := newMachine(gen)
		p := product()
		p.Image = ad.Image{}

		err := m.Submit(ctx, p)
		assert.ErrorIs(t, err, ad.ErrValidation)
		q.drain()
		assert.Equal(t, KindForm, m.State().Kind())
		assert.Zero(t, gen.batchCalls)
		assert.Empty(t, *events)
	})

	t.Run("Failure/GenerationError", func(t *testing.T) {
		gen := okGenerator()
		gen.batch = func(ad.ProductInfo, string) ([]ad.Variant, error) {
			return nil, errors.New("Failed to communicate with the AI model: boom")
		}
		m, q, _ := newMachine(gen)

		require.NoError(t, m.Submit(ctx, product()))
		q.drain()
		failed, ok := m.State().(Failed)
		require.True(t, ok)
		assert.Equal(t, "Failed to generate ads. Please try again. Error: Failed to communicate with the AI model: boom", failed.Message)

		assert.ErrorIs(t, m.RegenerateAll(ctx, "x"), ErrInvalidTransition)
		require.NoError(t, m.Reset())
		assert.Equal(t, KindForm, m.State().Kind())
	})

	t.Run("Failure/NotFromLoading", func(t *testing.T) {
		m, _, _ := newMachine(okGenerator())
		require.NoError(t, m.Submit(ctx, product()))
		assert.ErrorIs(t, m.Submit(ctx, product()), ErrInvalidTransition)
		assert.ErrorIs(t, m.Reset(), ErrInvalidTransition)
	})

	t.Run("Success/TrimsOverlay", func(t *testing.T) {
		m, _, _ := newMachine(okGenerator())
		p := product()
		p.OverlayText = "   "
		require.NoError(t, m.Submit(ctx, p))
		assert.Empty(t, m.State().(Loading).Product.OverlayText)
	})
}

func TestRegenerateAll(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		gen := okGenerator()
		m, q, _ := newMachine(gen)
		require.NoError(t, m.Submit(ctx, product()))
		q.drain()

		require.NoError(t, m.RegenerateAll(ctx, "  brighter  "))
		loading, ok := m.State().(Loading)
		require.True(t, ok)
		assert.Equal(t, "brighter", loading.Feedback)
		assert.True(t, loading.Regenerate)

		q.drain()
		assert.Equal(t, variants("r"), inResults(t, m).Variants)
	})

	t.Run("Failure/BlankFeedback", func(t *testing.T) {
		m, q, _ := newMachine(okGenerator())
		require.NoError(t, m.Submit(ctx, product()))
		q.drain()
		assert.ErrorIs(t, m.RegenerateAll(ctx, " "), ad.ErrValidation)
		assert.Equal(t, KindResults, m.State().Kind())
	})

	t.Run("Failure/DiscardsResults", func(t *testing.T) {
		gen := okGenerator()
		m, q, _ := newMachine(gen)
		require.NoError(t, m.Submit(ctx, product()))
		q.drain()

		gen.batch = func(ad.ProductInfo, string) ([]ad.Variant, error) { return nil, errors.New("nope") }
		require.NoError(t, m.RegenerateAll(ctx, "again"))
		q.drain()
		failed, ok := m.State().(Failed)
		require.True(t, ok)
		assert.Equal(t, "Failed to regenerate ads. Please try again. Error: nope", failed.Message)
	})
}

func TestRegenerateOne(t *testing.T) {
	ctx := context.Background()

	t.Run("Success/ReplacesOnlyIndex", func(t *testing.T) {
		gen := okGenerator()
		m, q, events := newMachine(gen)
		require.NoError(t, m.Submit(ctx, product()))
		q.drain()
		before := inResults(t, m).Variants

		require.NoError(t, m.RegenerateOne(ctx, 1, "more contrast"))
		pending := inResults(t, m)
		idx, busy := pending.RegeneratingIndex()
		require.True(t, busy)
		assert.Equal(t, 1, idx)
		assert.Equal(t, before, pending.Variants)

		q.drain()
		after := inResults(t, m)
		assert.Nil(t, after.Regenerating)
		require.Len(t, after.Variants, 3)
		assert.Equal(t, before[0], after.Variants[0])
		assert.Equal(t, before[2], after.Variants[2])
		assert.Equal(t, "new-v2", after.Variants[1].Concept)

		last := (*events)[len(*events)-1]
		assert.Equal(t, EventVariantReplaced, last.Type)
		assert.Equal(t, 1, last.Index)
	})

	t.Run("Failure/KeepsCollection", func(t *testing.T) {
		gen := okGenerator()
		m, q, _ := newMachine(gen)
		require.NoError(t, m.Submit(ctx, product()))
		q.drain()
		before := inResults(t, m).Variants

		gen.single = func(ad.Variant, string) (ad.Variant, error) {
			return ad.Variant{}, errors.New("Failed to communicate with the AI model for regeneration: quota")
		}
		require.NoError(t, m.RegenerateOne(ctx, 2, "different"))
		q.drain()

		after := inResults(t, m)
		assert.Equal(t, before, after.Variants)
		assert.Nil(t, after.Regenerating)
		assert.Equal(t, "Failed to communicate with the AI model for regeneration: quota", after.Notice)

		m.DismissNotice()
		assert.Empty(t, inResults(t, m).Notice)

		require.NoError(t, m.RegenerateOne(ctx, 0, "again"))
	})

	t.Run("Failure/AdmissionControl", func(t *testing.T) {
		gen := okGenerator()
		m, q, _ := newMachine(gen)
		require.NoError(t, m.Submit(ctx, product()))
		q.drain()

		require.NoError(t, m.RegenerateOne(ctx, 0, "warmer"))
		assert.ErrorIs(t, m.RegenerateOne(ctx, 1, "cooler"), ErrBusy)
		assert.ErrorIs(t, m.RegenerateAll(ctx, "all new"), ErrBusy)
		assert.ErrorIs(t, m.Reset(), ErrBusy)
		assert.Equal(t, 1, len(q.tasks))

		q.drain()
		assert.Equal(t, 1, gen.singleCalls)
		require.NoError(t, m.Reset())
	})

	t.Run("Failure/OutOfRange", func(t *testing.T) {
		m, q, _ := newMachine(okGenerator())
		require.NoError(t, m.Submit(ctx, product()))
		q.drain()
		assert.ErrorIs(t, m.RegenerateOne(ctx, 3, "x"), ErrInvalidTransition)
		assert.ErrorIs(t, m.RegenerateOne(ctx, -1, "x"), ErrInvalidTransition)
	})

	t.Run("Failure/NotInForm", func(t *testing.T) {
		m, _, _ := newMachine(okGenerator())
		assert.ErrorIs(t, m.RegenerateOne(ctx, 0, "x"), ErrInvalidTransition)
	})

	t.Run("Success/StaleCompletionDropped", func(t *testing.T) {
		gen := okGenerator()
		m, q, _ := newMachine(gen)
		require.NoError(t, m.Submit(ctx, product()))
		q.drain()
		snap := m.Snapshot()

		require.NoError(t, m.RegenerateOne(ctx, 1, "x"))
		require.NoError(t, m.Restore(snap))
		q.drain()

		results := inResults(t, m)
		assert.Equal(t, "v2", results.Variants[1].Concept)
		assert.Nil(t, results.Regenerating)
	})
}

func TestSnapshotState(t *testing.T) {
	p := product()
	idx := 1

	t.Run("LoadingBecomesFailed", func(t *testing.T) {
		state, err := SnapshotOf(Loading{Product: p}).State()
		require.NoError(t, err)
		assert.Equal(t, Failed{Message: interruptedMessage}, state)
	})

	t.Run("ResultsDropsPendingRegeneration", func(t *testing.T) {
		snap := SnapshotOf(Results{Product: p, Variants: variants("v"), Regenerating: &idx})
		require.NotNil(t, snap.Regenerating)
		state, err := snap.State()
		require.NoError(t, err)
		results := state.(Results)
		assert.Nil(t, results.Regenerating)
		assert.Equal(t, variants("v"), results.Variants)
	})

	t.Run("Failure/Unknown", func(t *testing.T) {
		_, err := Snapshot{Kind: "PAUSED"}.State()
		assert.Error(t, err)
	})

	t.Run("Failure/EmptyResults", func(t *testing.T) {
		_, err := Snapshot{Kind: KindResults}.State()
		assert.Error(t, err)
	})
}
