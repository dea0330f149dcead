package tempo

import (
	"math"
	"sort"
)

// Features are coarse timbre descriptors of an audio track
type Features struct {
	SpectralCentroid float64 `json:"spectral_centroid"`
	SpectralRolloff  float64 `json:"spectral_rolloff"`
	ZeroCrossingRate float64 `json:"zero_crossing_rate"`
	Brightness       string  `json:"brightness"`
	Percussiveness   string  `json:"percussiveness"`
}

// ExtractFeatures summarises spectral shape and zero crossings
func ExtractFeatures(samples []float64, sampleRate int) Features {
	if sampleRate <= 0 || len(samples) == 0 {
		return Features{Brightness: "dark", Percussiveness: "smooth"}
	}
	spec := newSpectrogram(samples, sampleRate)

	f := Features{
		SpectralCentroid: spec.meanCentroid(),
		SpectralRolloff:  mean(spec.rolloffs(0.85)),
		ZeroCrossingRate: mean(zeroCrossingRates(samples)),
		Brightness:       "dark",
		Percussiveness:   "smooth",
	}
	if f.SpectralCentroid > 3000 {
		f.Brightness = "bright"
	}
	if f.ZeroCrossingRate > 0.1 {
		f.Percussiveness = "percussive"
	}
	return f
}

// BPMClip is a stored clip with a measured tempo
type BPMClip struct {
	ID   int64   `json:"id"`
	Path string  `json:"path"`
	BPM  float64 `json:"bpm"`
}

// BPMMatch is a clip close to a target tempo
type BPMMatch struct {
	BPMClip
	Diff float64 `json:"bpm_diff"`
}

const DefaultBPMTolerance = 10

// FindClipsForBPM returns clips within tolerance of target, closest first.
// Clips without a tempo never match.
func FindClipsForBPM(target float64, clips []BPMClip, tolerance float64) []BPMMatch {
	if tolerance <= 0 {
		tolerance = DefaultBPMTolerance
	}
	var out []BPMMatch
	for _, c := range clips {
		if c.BPM <= 0 {
			continue
		}
		if d := math.Abs(c.BPM - target); d <= tolerance {
			out = append(out, BPMMatch{BPMClip: c, Diff: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Diff < out[j].Diff })
	return out
}
