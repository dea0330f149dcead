// Package categorize assigns category paths and use-case suggestions to
// analyzed clips.
package categorize

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/kikiluvv/clipsignal/internal/metrics"
	"github.com/kikiluvv/clipsignal/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	Uncategorized      = "Uncategorized"
	useCaseDescription = "Auto-suggested based on tags and metadata"

	// DefaultMinSuitability is the lowest suitability that is kept
	DefaultMinSuitability = 30

	lockStripes = 64
)

// Store is the persistence the engine reads signals from and writes
// results to
type Store interface {
	GetSignals(ctx context.Context, videoID int64) (*store.Signals, error)
	RegisterCategory(ctx context.Context, name, parent string) error
	SetCategory(ctx context.Context, videoID int64, path string) error
	ClearUseCases(ctx context.Context, videoID int64) error
	AddUseCase(ctx context.Context, videoID int64, name string, suitability float64, description string) error
	ListUncategorized(ctx context.Context) ([]int64, error)
	CategoryCounts(ctx context.Context) ([]store.CategoryCount, error)
}

// UseCase is a suggested use with its suitability percentage
type UseCase struct {
	Name        string  `json:"use_case"`
	Suitability float64 `json:"suitability_score"`
}

// Assignment is the full categorization result for one clip
type Assignment struct {
	VideoID      int64     `json:"video_id"`
	CategoryPath string    `json:"category"`
	UseCases     []UseCase `json:"use_cases"`
}

type Options struct {
	TaxonomyPath   string
	UseCasesPath   string
	MinSuitability float64
}

type Engine struct {
	store    Store
	logger   zerolog.Logger
	taxonomy *Taxonomy
	rules    []UseCaseRule
	minScore float64

	// writes for one clip are serialised; different clips proceed in parallel
	locks [lockStripes]sync.Mutex
}

func NewEngine(st Store, logger zerolog.Logger, opts Options) (*Engine, error) {
	taxonomy, err := LoadTaxonomy(opts.TaxonomyPath)
	if err != nil {
		return nil, err
	}
	rules, err := LoadUseCases(opts.UseCasesPath)
	if err != nil {
		return nil, err
	}
	if opts.MinSuitability <= 0 {
		opts.MinSuitability = DefaultMinSuitability
	}
	return &Engine{
		store:    st,
		logger:   logger,
		taxonomy: taxonomy,
		rules:    rules,
		minScore: opts.MinSuitability,
	}, nil
}

func (e *Engine) lock(videoID int64) func() {
	mu := &e.locks[uint64(videoID)%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// RegisterHierarchy records every category and subcategory. Safe to call
// repeatedly.
func (e *Engine) RegisterHierarchy(ctx context.Context) error {
	for _, c := range e.taxonomy.Categories {
		if err := e.store.RegisterCategory(ctx, c.Name, ""); err != nil {
			return err
		}
		for _, sub := range c.Subcategories {
			if err := e.store.RegisterCategory(ctx, sub, c.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// lower folds text for keyword matching; a Caser is not safe for
// concurrent use so each call gets its own
func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// BestCategory scores the taxonomy against tags and returns the winning
// path, or Uncategorized when nothing matches
func (e *Engine) BestCategory(tags []string) string {
	text := lower(strings.Join(tags, " "))
	if strings.TrimSpace(text) == "" {
		return Uncategorized
	}

	scores := make(map[string]int)
	for _, c := range e.taxonomy.Categories {
		score := 0
		for _, kw := range c.Keywords {
			if strings.Contains(text, lower(kw)) {
				score += 2
			}
		}
		for _, sub := range c.Subcategories {
			if strings.Contains(text, lower(sub)) {
				score += 3
				scores[c.Name+" > "+sub] = score + 5
			}
		}
		if score > 0 {
			scores[c.Name] = score
		}
	}

	best, bestScore := Uncategorized, 0
	for path, score := range scores {
		if score > bestScore || (score == bestScore && path < best) {
			best, bestScore = path, score
		}
	}
	return best
}

// AssignCategory computes and stores the category path of videoID
func (e *Engine) AssignCategory(ctx context.Context, videoID int64) (string, error) {
	defer e.lock(videoID)()
	return e.assignCategory(ctx, videoID)
}

func (e *Engine) assignCategory(ctx context.Context, videoID int64) (string, error) {
	sig, err := e.store.GetSignals(ctx, videoID)
	if err != nil {
		return "", err
	}

	path := e.BestCategory(sig.Tags)
	if err := e.store.SetCategory(ctx, videoID, path); err != nil {
		return "", err
	}
	metrics.RecordCategory(path)

	e.logger.Debug().Int64("video_id", videoID).Str("category", path).Msg("category assigned")
	return path, nil
}

// ScoreUseCases rates every rule against sig and returns those at or above
// the minimum suitability, best first
func (e *Engine) ScoreUseCases(sig *store.Signals) []UseCase {
	text := lower(strings.Join(sig.Tags, " "))
	category := lower(sig.Category)
	moods := make([]string, len(sig.Moods))
	for i, m := range sig.Moods {
		moods[i] = lower(m)
	}

	var out []UseCase
	for _, r := range e.rules {
		score, maxScore := 0, 0

		if len(r.Keywords) > 0 {
			maxScore += 2 * len(r.Keywords)
			for _, kw := range r.Keywords {
				if strings.Contains(text, lower(kw)) {
					score += 2
				}
			}
		}
		if len(r.Moods) > 0 {
			maxScore += 3
			if slices.ContainsFunc(r.Moods, func(m string) bool { return slices.Contains(moods, lower(m)) }) {
				score += 3
			}
		}
		if len(r.Motion) > 0 && sig.MotionLevel != "" {
			maxScore += 2
			if slices.Contains(r.Motion, sig.MotionLevel) {
				score += 2
			}
		}
		if len(r.Categories) > 0 && category != "" {
			maxScore += 3
			if slices.ContainsFunc(r.Categories, func(c string) bool { return strings.Contains(category, lower(c)) }) {
				score += 3
			}
		}
		if r.EnergyMin != nil {
			maxScore += 2
			if sig.Energy >= *r.EnergyMin {
				score += 2
			}
		}
		if r.EnergyMax != nil {
			maxScore += 2
			if sig.Energy <= *r.EnergyMax {
				score += 2
			}
		}

		if maxScore == 0 {
			continue
		}
		raw := 100 * float64(score) / float64(maxScore)
		if raw < e.minScore {
			continue
		}
		out = append(out, UseCase{Name: r.Name, Suitability: math.Round(10*raw) / 10})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Suitability != out[j].Suitability {
			return out[i].Suitability > out[j].Suitability
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// SuggestUseCases scores videoID and replaces its stored use cases
func (e *Engine) SuggestUseCases(ctx context.Context, videoID int64) ([]UseCase, error) {
	defer e.lock(videoID)()
	return e.suggestUseCases(ctx, videoID)
}

func (e *Engine) suggestUseCases(ctx context.Context, videoID int64) ([]UseCase, error) {
	sig, err := e.store.GetSignals(ctx, videoID)
	if err != nil {
		return nil, err
	}

	ucs := e.ScoreUseCases(sig)
	if err := e.store.ClearUseCases(ctx, videoID); err != nil {
		return nil, err
	}
	for _, uc := range ucs {
		if err := e.store.AddUseCase(ctx, videoID, uc.Name, uc.Suitability, useCaseDescription); err != nil {
			return nil, err
		}
	}
	return ucs, nil
}

// Categorize assigns the category and then the use cases, so category
// rules see the fresh path
func (e *Engine) Categorize(ctx context.Context, videoID int64) (Assignment, error) {
	defer e.lock(videoID)()

	path, err := e.assignCategory(ctx, videoID)
	if err != nil {
		return Assignment{}, fmt.Errorf("categorize %d: %w", videoID, err)
	}
	ucs, err := e.suggestUseCases(ctx, videoID)
	if err != nil {
		return Assignment{}, fmt.Errorf("suggest use cases for %d: %w", videoID, err)
	}
	return Assignment{VideoID: videoID, CategoryPath: path, UseCases: ucs}, nil
}

// CategorizeUncategorized re-runs Categorize for every clip without a real
// category. A failing clip is logged and skipped.
func (e *Engine) CategorizeUncategorized(ctx context.Context) ([]Assignment, error) {
	ids, err := e.store.ListUncategorized(ctx)
	if err != nil {
		return nil, err
	}

	var out []Assignment
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		a, err := e.Categorize(ctx, id)
		if err != nil {
			e.logger.Warn().Err(err).Int64("video_id", id).Msg("categorization failed")
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// CategoryStats counts clips per category path
func (e *Engine) CategoryStats(ctx context.Context) ([]store.CategoryCount, error) {
	return e.store.CategoryCounts(ctx)
}
