package tempo

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/kikiluvv/clipsignal/internal/ffmpeg"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = 22050

// clickTrack renders decaying 1kHz bursts at the given tempo
func clickTrack(bpm float64, seconds float64) []float64 {
	out := make([]float64, int(seconds*testRate))
	period := 60 / bpm
	burst := int(0.03 * testRate)
	for beat := 0.0; beat < seconds; beat += period {
		start := int(beat * testRate)
		for i := 0; i < burst && start+i < len(out); i++ {
			tt := float64(i) / testRate
			out[start+i] = 0.8 * math.Sin(2*math.Pi*1000*tt) * math.Exp(-tt/0.01)
		}
	}
	return out
}

type fakeDecoder struct {
	samples []float64
	err     error
	gotRate int
	gotMax  time.Duration
}

func (f *fakeDecoder) DecodeAudio(_ context.Context, _ string, format ffmpeg.AudioFormat, limit time.Duration) ([]float64, error) {
	f.gotRate = format.SampleRate
	f.gotMax = limit
	return f.samples, f.err
}

func TestCategorize(t *testing.T) {
	cases := []struct {
		bpm  float64
		want Category
	}{
		{0, CategoryNone},
		{-5, CategoryNone},
		{45, CategoryVerySlow},
		{60, CategorySlow},
		{89.9, CategorySlow},
		{90, CategoryModerate},
		{120, CategoryFast},
		{149, CategoryFast},
		{150, CategoryVeryFast},
		{200, CategoryExtremelyFast},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Categorize(tc.bpm), "bpm %v", tc.bpm)
	}
}

func TestMoodFromTempo(t *testing.T) {
	cases := []struct {
		bpm, energy float64
		want        string
	}{
		{0, 90, "ambient"},
		{50, 10, "calm"},
		{50, 40, "dramatic"},
		{80, 20, "relaxed"},
		{80, 50, "groovy"},
		{100, 60, "upbeat"},
		{100, 50, "moderate"},
		{130, 61, "energetic"},
		{130, 60, "driving"},
		{170, 80, "intense"},
		{170, 70, "fast"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MoodFromTempo(tc.bpm, tc.energy), "bpm %v energy %v", tc.bpm, tc.energy)
	}
}

func TestAnalyzeSamplesClickTrack(t *testing.T) {
	sig := AnalyzeSamples(clickTrack(120, 20), testRate)

	assert.InDelta(t, 120, sig.BPM, 8)
	assert.True(t, sig.HasRhythm)
	assert.Greater(t, sig.Stability, 0.8)
	assert.GreaterOrEqual(t, sig.BeatCount, 30)
	assert.LessOrEqual(t, sig.BeatCount, 42)
	assert.Len(t, sig.BeatTimes, sig.BeatCount)
	assert.InDelta(t, float64(sig.BeatCount)/100, sig.Confidence, 1e-9)
	assert.Greater(t, sig.Energy, 0.0)
	assert.Greater(t, sig.Brightness, 0.0)

	for i := 1; i < len(sig.BeatTimes); i++ {
		assert.Greater(t, sig.BeatTimes[i], sig.BeatTimes[i-1])
	}
}

func TestAnalyzeSamplesSilence(t *testing.T) {
	assert.Equal(t, Empty(), AnalyzeSamples(make([]float64, testRate), testRate))
	assert.Equal(t, Empty(), AnalyzeSamples(nil, testRate))
}

func TestAnalyzeDecodeFailureIsEmpty(t *testing.T) {
	dec := &fakeDecoder{err: errors.New("no audio stream")}
	a := NewAnalyzer(zerolog.Nop(), dec, DefaultConfig())
	assert.Equal(t, Empty(), a.Analyze(context.Background(), "clip.mp4"))
	assert.Equal(t, 22050, dec.gotRate)
	assert.Equal(t, 60*time.Second, dec.gotMax)

	assert.Equal(t, Empty(), NewAnalyzer(zerolog.Nop(), nil, DefaultConfig()).Analyze(context.Background(), "clip.mp4"))
}

func TestAnalyzeUsesDecodedSamples(t *testing.T) {
	dec := &fakeDecoder{samples: clickTrack(120, 10)}
	sig := NewAnalyzer(zerolog.Nop(), dec, DefaultConfig()).Analyze(context.Background(), "clip.mp4")
	assert.Greater(t, sig.BPM, 0.0)
	assert.NotEqual(t, CategoryNone, sig.Category)
}

func TestStability(t *testing.T) {
	assert.Zero(t, stability(nil))
	assert.Zero(t, stability([]float64{1}))
	assert.InDelta(t, 1, stability([]float64{0, 0.5, 1, 1.5}), 1e-9)
	assert.Less(t, stability([]float64{0, 0.1, 1, 1.1, 2}), 0.5)
}

func TestExtractFeatures(t *testing.T) {
	tone := make([]float64, testRate)
	for i := range tone {
		tone[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/testRate)
	}
	f := ExtractFeatures(tone, testRate)
	// edge frames leak some energy upwards, the bulk stays at 440Hz
	assert.Greater(t, f.SpectralCentroid, 300.0)
	assert.Less(t, f.SpectralCentroid, 1500.0)
	assert.Greater(t, f.SpectralRolloff, 0.0)
	assert.Equal(t, "dark", f.Brightness)
	assert.Equal(t, "smooth", f.Percussiveness)
	assert.InDelta(t, 2*440.0/testRate, f.ZeroCrossingRate, 0.005)

	hiss := make([]float64, testRate)
	for i := range hiss {
		// alternating sign is the highest representable frequency
		hiss[i] = 0.5
		if i%2 == 1 {
			hiss[i] = -0.5
		}
	}
	f = ExtractFeatures(hiss, testRate)
	assert.Equal(t, "bright", f.Brightness)
	assert.Equal(t, "percussive", f.Percussiveness)
}

func TestFindClipsForBPM(t *testing.T) {
	clips := []BPMClip{
		{ID: 1, BPM: 128},
		{ID: 2, BPM: 119},
		{ID: 3, BPM: 0},
		{ID: 4, BPM: 90},
		{ID: 5, BPM: 121},
	}
	got := FindClipsForBPM(120, clips, 0)
	require.Len(t, got, 3)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(5), got[1].ID)
	assert.Equal(t, int64(1), got[2].ID)
	assert.InDelta(t, 8, got[2].Diff, 1e-9)

	assert.Empty(t, FindClipsForBPM(120, clips, 0.5))
}
