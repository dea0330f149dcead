// Package color extracts dominant color palettes from frames.
package color

import (
	"context"
	"image"
	"math/rand/v2"
	"sort"

	"github.com/kikiluvv/clipsignal/internal/media"
	"github.com/rs/zerolog"
)

// Entry is one palette color
type Entry struct {
	Hex        string  `json:"hex"`
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"`
	// Count is the cluster size for a single frame, or the number of
	// frames the color appeared in for an aggregate
	Count int `json:"count"`
}

// Palette is ordered by descending percentage (or count when aggregated)
type Palette []Entry

type Config struct {
	Clusters     int
	PerFrame     int
	SampleFrames int
	Attempts     int
	Seed         uint64
	Size         int // frames are resized to Size x Size before clustering
}

func DefaultConfig() Config {
	return Config{
		Clusters:     5,
		PerFrame:     3,
		SampleFrames: 3,
		Attempts:     10,
		Seed:         1,
		Size:         150,
	}
}

const (
	maxIterations = 100
	epsilon       = 0.2
	aggregateTop  = 5
)

type Extractor struct {
	logger zerolog.Logger
	cfg    Config
}

func NewExtractor(logger zerolog.Logger, cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.Clusters <= 0 {
		cfg.Clusters = def.Clusters
	}
	if cfg.PerFrame <= 0 {
		cfg.PerFrame = def.PerFrame
	}
	if cfg.SampleFrames <= 0 {
		cfg.SampleFrames = def.SampleFrames
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.Size <= 0 {
		cfg.Size = def.Size
	}
	return &Extractor{logger: logger, cfg: cfg}
}

// Dominant clusters the pixels of frame into at most k colors. A
// non-positive k uses the configured cluster count.
func (e *Extractor) Dominant(frame image.Image, k int) Palette {
	if k <= 0 {
		k = e.cfg.Clusters
	}
	points := pixels(media.Resize(frame, e.cfg.Size, e.cfg.Size))
	if len(points) == 0 {
		return nil
	}

	rng := rand.New(rand.NewPCG(e.cfg.Seed, e.cfg.Seed))
	res := kmeans(points, k, e.cfg.Attempts, maxIterations, epsilon, rng)

	counts := make([]int, len(res.centers))
	for _, l := range res.labels {
		counts[l]++
	}

	var out Palette
	for c, center := range res.centers {
		if counts[c] == 0 {
			continue
		}
		r, g, b := uint8(center[0]), uint8(center[1]), uint8(center[2])
		out = append(out, Entry{
			Hex:        Hex(r, g, b),
			Name:       Name(r, g, b),
			Percentage: float64(counts[c]) / float64(len(points)),
			Count:      counts[c],
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Percentage > out[j].Percentage })
	return out
}

// Aggregate merges per-frame palettes by color name, keeping the five
// names seen in the most frames
func (e *Extractor) Aggregate(frames []image.Image, kPerFrame int) Palette {
	if len(frames) == 0 {
		return nil
	}
	if kPerFrame <= 0 {
		kPerFrame = e.cfg.PerFrame
	}

	var merged Palette
	byName := make(map[string]int)
	for _, frame := range frames {
		for _, entry := range e.Dominant(frame, kPerFrame) {
			i, ok := byName[entry.Name]
			if !ok {
				byName[entry.Name] = len(merged)
				merged = append(merged, Entry{Hex: entry.Hex, Name: entry.Name})
				i = len(merged) - 1
			}
			merged[i].Count++
			merged[i].Percentage += entry.Percentage
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Count > merged[j].Count })
	if len(merged) > aggregateTop {
		merged = merged[:aggregateTop]
	}
	for i := range merged {
		merged[i].Percentage /= float64(len(frames))
	}
	return merged
}

// FromClip samples frames evenly across clip and aggregates their palettes.
// A non-positive samples uses the configured count.
func (e *Extractor) FromClip(ctx context.Context, clip media.Clip, samples int) (Palette, error) {
	if samples <= 0 {
		samples = e.cfg.SampleFrames
	}
	sampled, err := media.SampleFrames(ctx, clip, samples)
	if err != nil && len(sampled) == 0 {
		return nil, err
	}
	if err != nil {
		e.logger.Warn().Err(err).Str("clip", clip.Path()).Int("frames", len(sampled)).Msg("palette from partial sample")
	}
	return e.Aggregate(media.Images(sampled), e.cfg.PerFrame), nil
}

func pixels(img image.Image) []rgb {
	b := img.Bounds()
	out := make([]rgb, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out = append(out, rgb{float64(r >> 8), float64(g >> 8), float64(bl >> 8)})
		}
	}
	return out
}
