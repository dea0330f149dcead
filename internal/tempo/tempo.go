// Package tempo estimates BPM, beat positions and loudness from a clip's
// audio track.
package tempo

import (
	"context"
	"math"
	"time"

	"github.com/kikiluvv/clipsignal/internal/ffmpeg"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// Category buckets a BPM value
type Category string

const (
	CategoryNone          Category = "none"
	CategoryVerySlow      Category = "very_slow"
	CategorySlow          Category = "slow"
	CategoryModerate      Category = "moderate"
	CategoryFast          Category = "fast"
	CategoryVeryFast      Category = "very_fast"
	CategoryExtremelyFast Category = "extremely_fast"
)

// Signal is the tempo summary for one clip
type Signal struct {
	BPM        float64   `json:"bpm"`
	Category   Category  `json:"category"`
	BeatCount  int       `json:"beat_count"`
	BeatTimes  []float64 `json:"beat_times,omitempty"`
	Confidence float64   `json:"confidence"`
	Stability  float64   `json:"stability"`
	HasRhythm  bool      `json:"has_rhythm"`
	Energy     float64   `json:"energy"`
	Brightness float64   `json:"brightness"`
}

// Empty is reported for clips without usable audio
func Empty() Signal {
	return Signal{Category: CategoryNone}
}

// Categorize buckets bpm; non-positive values have no category
func Categorize(bpm float64) Category {
	switch {
	case bpm <= 0:
		return CategoryNone
	case bpm < 60:
		return CategoryVerySlow
	case bpm < 90:
		return CategorySlow
	case bpm < 120:
		return CategoryModerate
	case bpm < 150:
		return CategoryFast
	case bpm < 200:
		return CategoryVeryFast
	default:
		return CategoryExtremelyFast
	}
}

// MoodFromTempo suggests a mood word from tempo and energy (0-100)
func MoodFromTempo(bpm, energy float64) string {
	switch {
	case bpm <= 0:
		return "ambient"
	case bpm < 60:
		if energy < 30 {
			return "calm"
		}
		return "dramatic"
	case bpm < 90:
		if energy < 50 {
			return "relaxed"
		}
		return "groovy"
	case bpm < 120:
		if energy > 50 {
			return "upbeat"
		}
		return "moderate"
	case bpm < 150:
		if energy > 60 {
			return "energetic"
		}
		return "driving"
	default:
		if energy > 70 {
			return "intense"
		}
		return "fast"
	}
}

// Decoder turns a media file into mono PCM samples in [-1, 1]
type Decoder interface {
	DecodeAudio(ctx context.Context, path string, format ffmpeg.AudioFormat, limit time.Duration) ([]float64, error)
}

type Config struct {
	SampleRate  int
	MaxDuration time.Duration
}

func DefaultConfig() Config {
	return Config{SampleRate: 22050, MaxDuration: 60 * time.Second}
}

// Analyzer decodes audio and runs beat tracking over it
type Analyzer struct {
	logger zerolog.Logger
	dec    Decoder
	cfg    Config
}

// NewAnalyzer returns an analyzer. A nil decoder makes every clip silent.
func NewAnalyzer(logger zerolog.Logger, dec Decoder, cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = def.MaxDuration
	}
	return &Analyzer{logger: logger, dec: dec, cfg: cfg}
}

// Analyze never fails. Missing, undecodable or silent audio yields Empty().
func (a *Analyzer) Analyze(ctx context.Context, mediaPath string) Signal {
	if a.dec == nil {
		return Empty()
	}

	start := time.Now()
	format := ffmpeg.AudioFormat{SampleRate: a.cfg.SampleRate, Channels: 1}
	samples, err := a.dec.DecodeAudio(ctx, mediaPath, format, a.cfg.MaxDuration)
	if err != nil {
		a.logger.Debug().Err(err).Str("clip", mediaPath).Msg("no decodable audio")
		return Empty()
	}
	if limit := int(a.cfg.MaxDuration.Seconds() * float64(a.cfg.SampleRate)); len(samples) > limit {
		samples = samples[:limit]
	}

	sig := AnalyzeSamples(samples, a.cfg.SampleRate)
	a.logger.Debug().
		Str("clip", mediaPath).
		Float64("bpm", sig.BPM).
		Int("beats", sig.BeatCount).
		Dur("took", time.Since(start)).
		Msg("tempo analyzed")
	return sig
}

// AnalyzeSamples runs the full tempo analysis over mono samples
func AnalyzeSamples(samples []float64, sampleRate int) Signal {
	if sampleRate <= 0 || isSilent(samples) {
		return Empty()
	}

	spec := newSpectrogram(samples, sampleRate)
	onset := spec.onsetEnvelope()
	fps := float64(sampleRate) / hopLength

	sig := Signal{
		Category:   CategoryNone,
		Energy:     math.Min(100, meanRMS(samples)*100),
		Brightness: spec.meanCentroid(),
	}

	bpm := estimateTempo(onset, fps)
	if bpm <= 0 {
		return sig
	}
	sig.BPM = bpm
	sig.Category = Categorize(bpm)

	beats := trackBeats(onset, fps, bpm)
	sig.BeatCount = len(beats)
	sig.BeatTimes = make([]float64, len(beats))
	for i, b := range beats {
		sig.BeatTimes[i] = float64(b) / fps
	}
	sig.Confidence = math.Min(1, float64(len(beats))/100)
	sig.Stability = stability(sig.BeatTimes)
	sig.HasRhythm = sig.BPM > 0 && sig.BeatCount > 4 && sig.Stability > 0.3
	return sig
}

func isSilent(samples []float64) bool {
	for _, s := range samples {
		if math.Abs(s) >= 1e-4 {
			return false
		}
	}
	return true
}

// stability is 1 - coefficient of variation of the inter-beat intervals
func stability(beatTimes []float64) float64 {
	if len(beatTimes) < 2 {
		return 0
	}
	ibi := make([]float64, len(beatTimes)-1)
	for i := range ibi {
		ibi[i] = beatTimes[i+1] - beatTimes[i]
	}
	mean, std := stat.PopMeanStdDev(ibi, nil)
	if mean <= 0 {
		return 0
	}
	return math.Min(1, math.Max(0, 1-std/mean))
}
