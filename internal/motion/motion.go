// Package motion measures how much a clip moves.
package motion

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/kikiluvv/clipsignal/internal/media"
	"github.com/rs/zerolog"
)

// ErrMediaUnreadable is reported when a clip yields no usable frame pairs
var ErrMediaUnreadable = media.ErrUnreadable

// Level buckets the mean flow magnitude
type Level string

const (
	LevelStatic   Level = "static"
	LevelSlow     Level = "slow"
	LevelModerate Level = "moderate"
	LevelFast     Level = "fast"
	LevelIntense  Level = "intense"
)

// Signal is the motion summary for one clip
type Signal struct {
	Level            Level   `json:"level"`
	Score            float64 `json:"score"`
	FlowMagnitude    float64 `json:"flow_magnitude"`
	MaxFlowMagnitude float64 `json:"max_flow_magnitude"`
	AreaFraction     float64 `json:"area_fraction"`
	CameraMotion     bool    `json:"camera_motion"`
	ObjectMotion     bool    `json:"object_motion"`
	FramesAnalyzed   int     `json:"frames_analyzed"`
}

// Neutral is the signal reported for clips that cannot be measured
func Neutral() Signal {
	return Signal{Level: LevelStatic}
}

// ClassifyLevel maps a mean flow magnitude onto a Level. Band boundaries
// belong to the upper band.
func ClassifyLevel(m float64) Level {
	switch {
	case m < 0.5:
		return LevelStatic
	case m < 2:
		return LevelSlow
	case m < 5:
		return LevelModerate
	case m < 10:
		return LevelFast
	default:
		return LevelIntense
	}
}

// Config controls sampling and frame geometry
type Config struct {
	SampleFrames     int
	Width            int
	Height           int
	PixelThreshold   float64 // flow magnitude that counts a pixel as moving
	SceneThreshold   float64
	HeatmapMaxFrames int
	Flow             FlowParams
}

func DefaultConfig() Config {
	return Config{
		SampleFrames:     30,
		Width:            320,
		Height:           240,
		PixelThreshold:   0.5,
		SceneThreshold:   30,
		HeatmapMaxFrames: 100,
		Flow:             DefaultFlowParams(),
	}
}

// Analyzer computes motion signals, scene cuts and heatmaps
type Analyzer struct {
	logger zerolog.Logger
	cfg    Config
}

func NewAnalyzer(logger zerolog.Logger, cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.SampleFrames < 2 {
		cfg.SampleFrames = def.SampleFrames
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.PixelThreshold <= 0 {
		cfg.PixelThreshold = def.PixelThreshold
	}
	if cfg.SceneThreshold <= 0 {
		cfg.SceneThreshold = def.SceneThreshold
	}
	if cfg.HeatmapMaxFrames <= 0 {
		cfg.HeatmapMaxFrames = def.HeatmapMaxFrames
	}
	if cfg.Flow.Levels <= 0 {
		cfg.Flow = def.Flow
	}
	return &Analyzer{logger: logger, cfg: cfg}
}

// Analyze samples frame pairs across the clip and summarises their dense
// optical flow. It never fails: unreadable clips produce Neutral().
func (a *Analyzer) Analyze(ctx context.Context, clip media.Clip) Signal {
	start := time.Now()

	sig, err := a.analyze(ctx, clip)
	if err != nil {
		a.logger.Warn().Err(err).Str("clip", clip.Path()).Msg("motion analysis fell back to static")
		return Neutral()
	}

	a.logger.Debug().
		Str("clip", clip.Path()).
		Str("level", string(sig.Level)).
		Float64("magnitude", sig.FlowMagnitude).
		Int("pairs", sig.FramesAnalyzed).
		Dur("took", time.Since(start)).
		Msg("motion analyzed")
	return sig
}

func (a *Analyzer) analyze(ctx context.Context, clip media.Clip) (Signal, error) {
	total, err := clip.FrameCount(ctx)
	if err != nil {
		return Signal{}, err
	}
	if total < 2 {
		return Signal{}, fmt.Errorf("%w: %d frames", ErrMediaUnreadable, total)
	}

	indices := sampleIndices(total, a.cfg.SampleFrames)
	wanted := make(map[int]bool, len(indices))
	for _, i := range indices {
		wanted[i] = true
	}
	last := indices[len(indices)-1]

	frames := make(map[int]*plane, len(wanted))
	opts := media.WalkOptions{Width: a.cfg.Width, Height: a.cfg.Height, Gray: true}
	err = clip.Walk(ctx, opts, func(index int, frame image.Image) error {
		if wanted[index] {
			frames[index] = planeFromGray(media.ToGray(frame, a.cfg.Width, a.cfg.Height))
		}
		if index >= last {
			return media.ErrStop
		}
		return nil
	})
	if err != nil {
		return Signal{}, err
	}

	// flow runs between consecutive sampled frames that decoded
	var sumMag, maxMag, sumArea float64
	var prev *plane
	pairs := 0
	for _, i := range indices {
		if err := ctx.Err(); err != nil {
			return Signal{}, err
		}
		next := frames[i]
		if next == nil {
			continue
		}
		if prev == nil {
			prev = next
			continue
		}

		mag := denseFlow(prev, next, a.cfg.Flow)
		prev = next

		var sum float64
		moving := 0
		for _, m := range mag {
			sum += float64(m)
			if float64(m) > a.cfg.PixelThreshold {
				moving++
			}
		}
		mean := sum / float64(len(mag))
		sumMag += mean
		maxMag = math.Max(maxMag, mean)
		sumArea += float64(moving) / float64(len(mag))
		pairs++
	}
	if pairs == 0 {
		return Signal{}, fmt.Errorf("%w: no decodable frame pairs", ErrMediaUnreadable)
	}

	mag := sumMag / float64(pairs)
	area := sumArea / float64(pairs)
	return Signal{
		Level:            ClassifyLevel(mag),
		Score:            math.Min(100, mag*10),
		FlowMagnitude:    mag,
		MaxFlowMagnitude: maxMag,
		AreaFraction:     area,
		CameraMotion:     area > 0.6,
		ObjectMotion:     area < 0.4 && mag > 1.0,
		FramesAnalyzed:   pairs,
	}, nil
}

// sampleIndices spreads min(n, total-1) frames over [0, total-2]. A two
// frame clip samples both frames so there is still one pair.
func sampleIndices(total, n int) []int {
	n = min(n, total-1)
	if n <= 1 {
		return []int{0, total - 1}
	}
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		idx := i * (total - 2) / (n - 1)
		if len(out) > 0 && out[len(out)-1] == idx {
			continue
		}
		out = append(out, idx)
	}
	return out
}
