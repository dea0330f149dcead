// Package pipeline drives the analyzers over batches of clips and records
// their signals.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kikiluvv/clipsignal/internal/caption"
	"github.com/kikiluvv/clipsignal/internal/color"
	"github.com/kikiluvv/clipsignal/internal/compat"
	"github.com/kikiluvv/clipsignal/internal/config"
	"github.com/kikiluvv/clipsignal/internal/ffmpeg"
	"github.com/kikiluvv/clipsignal/internal/media"
	"github.com/kikiluvv/clipsignal/internal/metrics"
	"github.com/kikiluvv/clipsignal/internal/motion"
	"github.com/kikiluvv/clipsignal/internal/store"
	"github.com/kikiluvv/clipsignal/internal/tempo"
	"github.com/kikiluvv/clipsignal/pkg/util"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrNoDecoder is returned when no way to read frames was configured
var ErrNoDecoder = errors.New("no frame decoder configured")

// frames hashed when choosing key frames
const keyFrameSamples = 10

// Pipeline orchestrates per-clip analysis, persistence and categorization
type Pipeline struct {
	logger      zerolog.Logger
	cfg         *config.Config
	store       Store
	categorizer Categorizer

	motion *motion.Analyzer
	tempo  *tempo.Analyzer
	color  *color.Extractor
	compat *compat.Analyzer

	openClip  func(path string) media.Clip
	captioner caption.Provider
	audio     tempo.Decoder
	prober    compat.Prober
}

type Option func(*Pipeline)

// WithFFmpeg reads frames, audio and stream metadata through exec
func WithFFmpeg(exec *ffmpeg.Executor) Option {
	return func(p *Pipeline) {
		p.openClip = func(path string) media.Clip { return media.Open(exec, path) }
		p.audio = exec
		p.prober = exec
	}
}

func WithClipOpener(open func(path string) media.Clip) Option {
	return func(p *Pipeline) { p.openClip = open }
}

func WithCaptioner(c caption.Provider) Option {
	return func(p *Pipeline) { p.captioner = c }
}

func WithAudioDecoder(d tempo.Decoder) Option {
	return func(p *Pipeline) { p.audio = d }
}

func WithProber(pr compat.Prober) Option {
	return func(p *Pipeline) { p.prober = pr }
}

// New creates a pipeline. cat may be nil to skip categorization.
func New(logger zerolog.Logger, cfg *config.Config, st Store, cat Categorizer, opts ...Option) (*Pipeline, error) {
	if st == nil {
		return nil, fmt.Errorf("pipeline needs a store")
	}
	if cfg == nil {
		cfg = config.Default()
	}

	p := &Pipeline{
		logger:      logger.With().Str("component", "pipeline").Logger(),
		cfg:         cfg,
		store:       st,
		categorizer: cat,
		captioner:   caption.Nop{},
	}
	for _, opt := range opts {
		opt(p)
	}

	motionCfg := motion.DefaultConfig()
	motionCfg.SampleFrames = cfg.Motion.SampleFrames
	motionCfg.SceneThreshold = cfg.Motion.SceneThreshold
	motionCfg.HeatmapMaxFrames = cfg.Motion.HeatmapMaxFrames
	p.motion = motion.NewAnalyzer(logger.With().Str("component", "motion").Logger(), motionCfg)

	p.tempo = tempo.NewAnalyzer(logger.With().Str("component", "tempo").Logger(), p.audio, tempo.Config{
		SampleRate:  cfg.Tempo.SampleRate,
		MaxDuration: cfg.Tempo.MaxDuration,
	})

	colorCfg := color.DefaultConfig()
	colorCfg.Clusters = cfg.Color.Clusters
	colorCfg.PerFrame = cfg.Color.PerFrame
	colorCfg.SampleFrames = cfg.Color.SampleFrames
	colorCfg.Attempts = cfg.Color.Attempts
	colorCfg.Seed = uint64(cfg.Color.Seed)
	p.color = color.NewExtractor(logger.With().Str("component", "color").Logger(), colorCfg)

	p.compat = compat.NewAnalyzer(logger.With().Str("component", "compat").Logger(), p.prober, compat.Config{
		ScanLimit:   cfg.Compat.ScanLimit,
		LargeFileMB: cfg.Compat.LargeFileMB,
	})

	return p, nil
}

func (p *Pipeline) Motion() *motion.Analyzer { return p.motion }

func (p *Pipeline) Compat() *compat.Analyzer { return p.compat }

func (p *Pipeline) Tempo() *tempo.Analyzer { return p.tempo }

// Open returns the clip at path using the configured decoder
func (p *Pipeline) Open(path string) (media.Clip, error) {
	if p.openClip == nil {
		return nil, ErrNoDecoder
	}
	return p.openClip(path), nil
}

// Run analyzes every clip in job. A failing clip is reported and counted;
// the batch carries on. Cancelling ctx stops new clips from starting.
func (p *Pipeline) Run(ctx context.Context, job Job) (Summary, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}

	paths, err := Discover(job.Paths)
	if err != nil {
		return Summary{JobID: job.ID}, err
	}

	sum := Summary{JobID: job.ID, Total: len(paths), Failures: make(map[string]error)}
	logger := p.logger.With().Str("job", job.ID.String()).Logger()
	logger.Info().Int("clips", len(paths)).Msg("starting batch")

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(max(p.cfg.Concurrency, 1))

	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			p.emit(ctx, job, ProgressEvent{Stage: StageStarted, Path: path, Total: sum.Total})

			res, err := p.AnalyzeClip(ctx, path, job.SearchQuery)

			mu.Lock()
			if err != nil {
				sum.Failed++
				sum.Failures[path] = err
			} else {
				sum.Succeeded++
				sum.Results = append(sum.Results, res)
			}
			done := sum.Succeeded + sum.Failed
			mu.Unlock()

			ev := ProgressEvent{Stage: StageDone, Path: path, Done: done, Total: sum.Total}
			if err != nil {
				logger.Error().Err(err).Str("clip", path).Msg("clip failed")
				ev.Stage, ev.Err, ev.Message = StageFailed, err, err.Error()
			} else {
				ev.Message = res.Assignment.CategoryPath
			}
			p.emit(ctx, job, ev)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(sum.Results, func(i, j int) bool { return sum.Results[i].Path < sum.Results[j].Path })
	logger.Info().
		Int("succeeded", sum.Succeeded).
		Int("failed", sum.Failed).
		Msg("batch complete")

	return sum, ctx.Err()
}

func (p *Pipeline) emit(ctx context.Context, job Job, ev ProgressEvent) {
	if job.Progress == nil {
		return
	}
	ev.JobID = job.ID
	select {
	case job.Progress <- ev:
	case <-ctx.Done():
	}
}

// AnalyzeClip runs every analyzer on one clip, persists the signals and
// categorizes the clip
func (p *Pipeline) AnalyzeClip(ctx context.Context, path, searchQuery string) (Result, error) {
	res, err := p.analyze(ctx, path, searchQuery)
	if err != nil {
		metrics.RecordClip("failed")
		return Result{}, fmt.Errorf("analyze %s: %w", path, err)
	}
	metrics.RecordClip("ok")
	return res, nil
}

func (p *Pipeline) analyze(ctx context.Context, path, searchQuery string) (Result, error) {
	start := time.Now()
	clip, err := p.Open(path)
	if err != nil {
		return Result{}, err
	}

	compatStart := time.Now()
	compatSig, err := p.compat.Analyze(ctx, path)
	metrics.ObserveAnalyzer("compat", compatStart)
	if err != nil {
		return Result{}, err
	}
	metrics.RecordFastStart(compatSig.FastStart.String())

	vec := store.SignalVector{Compat: compatSig, Colors: color.Palette{}}
	var keyFrames []media.KeyFrame

	// every analyzer degrades to an empty signal, so the clip is always
	// persisted and categorized
	var g errgroup.Group
	g.Go(func() error {
		defer metrics.ObserveAnalyzer("motion", time.Now())
		vec.Motion = p.motion.Analyze(ctx, clip)
		return nil
	})
	g.Go(func() error {
		defer metrics.ObserveAnalyzer("tempo", time.Now())
		vec.Tempo = p.tempo.Analyze(ctx, path)
		return nil
	})
	g.Go(func() error {
		defer metrics.ObserveAnalyzer("color", time.Now())
		palette, err := p.color.FromClip(ctx, clip, 0)
		if err != nil {
			p.logger.Warn().Err(err).Str("clip", path).Msg("no colors extracted")
			return nil
		}
		vec.Colors = palette
		return nil
	})
	g.Go(func() error {
		defer metrics.ObserveAnalyzer("key_frames", time.Now())
		samples, err := media.SampleFrames(ctx, clip, keyFrameSamples)
		if err != nil && len(samples) == 0 {
			p.logger.Warn().Err(err).Str("clip", path).Msg("no key frames sampled")
			return nil
		}
		frames, err := media.SelectKeyFrames(samples, p.cfg.Pipeline.KeyFrameDistance)
		if err != nil {
			p.logger.Warn().Err(err).Str("clip", path).Msg("key frame selection failed")
			return nil
		}
		keyFrames = frames
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	capt := p.caption(ctx, path, keyFrames)

	id, err := p.store.AddVideo(ctx, path)
	if err != nil {
		return Result{}, err
	}
	if err := p.store.PersistSignals(ctx, id, vec); err != nil {
		return Result{}, err
	}
	rows := keyFrameRows(keyFrames, media.FrameRate(ctx, clip))
	if err := p.store.SetKeyFrames(ctx, id, rows); err != nil {
		return Result{}, err
	}
	if err := p.persistDescription(ctx, id, capt, searchQuery, vec.Tempo); err != nil {
		return Result{}, err
	}

	res := Result{
		VideoID:   id,
		Path:      path,
		Signals:   vec,
		Caption:   capt,
		KeyFrames: rows,
	}
	if p.categorizer != nil {
		res.Assignment, err = p.categorizer.Categorize(ctx, id)
		if err != nil {
			return Result{}, err
		}
	}
	res.Elapsed = time.Since(start)

	p.logger.Info().
		Str("clip", path).
		Int64("video_id", id).
		Str("motion", string(vec.Motion.Level)).
		Float64("bpm", vec.Tempo.BPM).
		Bool("compatible", vec.Compat.Compatible).
		Str("category", res.Assignment.CategoryPath).
		Dur("elapsed", res.Elapsed).
		Msg("clip analyzed")
	return res, nil
}

// caption describes the representative key frame. Provider failures only
// cost the clip its tags.
func (p *Pipeline) caption(ctx context.Context, path string, keyFrames []media.KeyFrame) *caption.Caption {
	rep, ok := media.Representative(keyFrames)
	if !ok {
		return nil
	}
	defer metrics.ObserveAnalyzer("caption", time.Now())

	c, err := p.captioner.Caption(ctx, rep.Frame)
	if err != nil {
		p.logger.Warn().Err(err).Str("clip", path).Msg("captioning failed")
		return nil
	}
	return c
}

func (p *Pipeline) persistDescription(ctx context.Context, id int64, capt *caption.Caption, searchQuery string, tempoSig tempo.Signal) error {
	described := capt
	if described == nil {
		described = &caption.Caption{}
	}

	var tags []store.Tag
	for _, t := range described.Tags(searchQuery) {
		tags = append(tags, store.Tag{Type: t.Type, Value: t.Value, Confidence: t.Confidence})
	}
	if err := p.store.SetTags(ctx, id, tags); err != nil {
		return err
	}

	switch {
	case described.Mood != "":
		mood := store.Mood{Type: described.Mood, Intensity: float64(described.MoodIntensity), Description: described.Theme}
		if err := p.store.SetMood(ctx, id, mood); err != nil {
			return err
		}
	case tempoSig.HasRhythm:
		mood := store.Mood{
			Type:        tempo.MoodFromTempo(tempoSig.BPM, tempoSig.Energy),
			Intensity:   caption.DefaultMoodIntensity,
			Description: fmt.Sprintf("%.0f BPM", tempoSig.BPM),
		}
		if err := p.store.SetMood(ctx, id, mood); err != nil {
			return err
		}
	}

	if capt != nil {
		return p.store.AddAnalysis(ctx, id, "caption", capt)
	}
	return nil
}

func keyFrameRows(frames []media.KeyFrame, fps float64) []store.KeyFrame {
	rows := make([]store.KeyFrame, 0, len(frames))
	for _, f := range frames {
		rows = append(rows, store.KeyFrame{
			FrameIndex:     f.Index,
			Timestamp:      util.FrameTimestamp(f.Index, fps).Seconds(),
			Hash:           f.Hash,
			Representative: f.Representative,
		})
	}
	return rows
}

// Discover expands directories into the clip files directly inside them.
// Plain paths are kept as given so a missing file surfaces as a failed clip.
func Discover(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
	}

	for _, path := range paths {
		st, err := os.Stat(path)
		if err != nil || !st.IsDir() {
			add(path)
			continue
		}
		clips, err := util.ListVideos(path)
		if err != nil {
			return nil, err
		}
		for _, c := range clips {
			add(c)
		}
	}
	return out, nil
}
