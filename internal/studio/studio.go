package studio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"adstudio/internal/ad"
	"adstudio/internal/creative"
)

type Stage string

const (
	StageBatch      Stage = "batch"
	StageRegenerate Stage = "regenerate"
)

var ErrUnknown = errors.New("unknown failure")

// Error carries the single user facing message of a failed operation while
// keeping the cause reachable through errors.Is and errors.As.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	if errors.Is(e.Err, ErrUnknown) {
		if e.Stage == StageRegenerate {
			return "An unknown error occurred during AI communication for regeneration."
		}
		return "An unknown error occurred during AI communication."
	}
	if e.Stage == StageRegenerate {
		return "Failed to communicate with the AI model for regeneration: " + causeMessage(e.Err)
	}
	return "Failed to communicate with the AI model: " + causeMessage(e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func causeMessage(err error) string {
	if err == nil {
		return ErrUnknown.Error()
	}
	return err.Error()
}

type ConceptSource interface {
	Concepts(ctx context.Context, product ad.ProductInfo, feedback string) ([]ad.Concept, error)
	SingleConcept(ctx context.Context, product ad.ProductInfo, original ad.Concept, feedback string) (ad.Concept, error)
}

type VisualRenderer interface {
	Render(ctx context.Context, product ad.ProductInfo, concept ad.Concept) (ad.Image, error)
}

type Options struct {
	Concepts ConceptSource
	Renderer VisualRenderer
	Logger   *slog.Logger
}

type Studio struct {
	concepts ConceptSource
	renderer VisualRenderer
	logger   *slog.Logger
}

func New(opts Options) *Studio {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Studio{
		concepts: opts.Concepts,
		renderer: opts.Renderer,
		logger:   logger,
	}
}

// GenerateAdVariants runs the batch pipeline: one concept call, then one
// render per concept in parallel. The result keeps concept order and is all
// or nothing.
func (s *Studio) GenerateAdVariants(ctx context.Context, product ad.ProductInfo, feedback string) (variants []ad.Variant, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("batch generation panic", "panic", r)
			variants, err = nil, &Error{Stage: StageBatch, Err: ErrUnknown}
		}
	}()

	concepts, err := s.concepts.Concepts(ctx, product, feedback)
	if err != nil {
		return nil, s.fail(StageBatch, err)
	}
	if len(concepts) == 0 {
		return nil, s.fail(StageBatch, creative.ErrNoConcepts)
	}

	variants = make([]ad.Variant, len(concepts))
	g, gctx := errgroup.WithContext(ctx)
	for i, concept := range concepts {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("render panic", "index", i, "panic", r)
					err = ErrUnknown
				}
			}()

			img, err := s.renderer.Render(gctx, product, concept)
			if err != nil {
				return fmt.Errorf("variant %d: %w", i+1, err)
			}
			variants[i] = ad.NewVariant(concept, img)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, s.fail(StageBatch, err)
	}

	s.logger.Info("ad variants generated",
		"count", len(variants),
		"style", product.Style,
		"feedback", feedback != "",
		"dur_ms", time.Since(start).Milliseconds(),
	)
	return variants, nil
}

// RegenerateSingleAdVariant replaces one variant. The caller keeps the rest
// of its collection whatever the outcome.
func (s *Studio) RegenerateSingleAdVariant(ctx context.Context, product ad.ProductInfo, original ad.Variant, feedback string) (variant ad.Variant, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("single regeneration panic", "panic", r)
			variant, err = ad.Variant{}, &Error{Stage: StageRegenerate, Err: ErrUnknown}
		}
	}()

	concept, err := s.concepts.SingleConcept(ctx, product, original.AsConcept(), feedback)
	if err != nil {
		return ad.Variant{}, s.fail(StageRegenerate, err)
	}

	img, err := s.renderer.Render(ctx, product, concept)
	if err != nil {
		return ad.Variant{}, s.fail(StageRegenerate, err)
	}

	s.logger.Info("ad variant regenerated", "style", product.Style, "dur_ms", time.Since(start).Milliseconds())
	return ad.NewVariant(concept, img), nil
}

func (s *Studio) fail(stage Stage, err error) error {
	var studioErr *Error
	if errors.As(err, &studioErr) {
		return err
	}
	if errors.Is(err, ad.ErrValidation) {
		// Local input problems are reported as is.
		return err
	}
	s.logger.Error("ad generation failed", "stage", stage, "err", err)
	return &Error{Stage: stage, Err: err}
}
