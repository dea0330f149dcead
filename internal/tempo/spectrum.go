package tempo

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/stat"
)

const (
	fftSize   = 2048
	hopLength = 512
)

// spectrogram holds STFT magnitudes, one row per hop
type spectrogram struct {
	sampleRate int
	mag        [][]float64
}

// newSpectrogram computes a centred, zero padded Hann STFT
func newSpectrogram(samples []float64, sampleRate int) *spectrogram {
	pad := fftSize / 2
	padded := make([]float64, len(samples)+2*pad)
	copy(padded[pad:], samples)

	win := make([]float64, fftSize)
	for i := range win {
		win[i] = 1
	}
	window.Hann(win)

	fft := fourier.NewFFT(fftSize)
	frames := 1 + len(samples)/hopLength
	seq := make([]float64, fftSize)
	coeffs := make([]complex128, fftSize/2+1)

	s := &spectrogram{sampleRate: sampleRate, mag: make([][]float64, 0, frames)}
	for f := 0; f < frames; f++ {
		start := f * hopLength
		if start+fftSize > len(padded) {
			break
		}
		for i := range seq {
			seq[i] = padded[start+i] * win[i]
		}
		coeffs = fft.Coefficients(coeffs, seq)
		row := make([]float64, len(coeffs))
		for i, c := range coeffs {
			row[i] = cmplx.Abs(c)
		}
		s.mag = append(s.mag, row)
	}
	return s
}

func (s *spectrogram) binFreq(k int) float64 {
	return float64(k) * float64(s.sampleRate) / fftSize
}

// onsetEnvelope is the mean half-wave rectified flux of the log magnitude
func (s *spectrogram) onsetEnvelope() []float64 {
	env := make([]float64, len(s.mag))
	var prev []float64
	for t, row := range s.mag {
		cur := make([]float64, len(row))
		for k, m := range row {
			cur[k] = math.Log1p(100 * m)
		}
		if prev != nil {
			var flux float64
			for k := range cur {
				if d := cur[k] - prev[k]; d > 0 {
					flux += d
				}
			}
			env[t] = flux / float64(len(cur))
		}
		prev = cur
	}
	return env
}

func (s *spectrogram) centroids() []float64 {
	out := make([]float64, len(s.mag))
	for t, row := range s.mag {
		var num, den float64
		for k, m := range row {
			num += s.binFreq(k) * m
			den += m
		}
		if den > 0 {
			out[t] = num / den
		}
	}
	return out
}

func (s *spectrogram) meanCentroid() float64 {
	return mean(s.centroids())
}

// rolloffs returns, per frame, the frequency below which pct of the
// spectral energy lies
func (s *spectrogram) rolloffs(pct float64) []float64 {
	out := make([]float64, len(s.mag))
	for t, row := range s.mag {
		var total float64
		for _, m := range row {
			total += m
		}
		if total == 0 {
			continue
		}
		var acc float64
		for k, m := range row {
			acc += m
			if acc >= pct*total {
				out[t] = s.binFreq(k)
				break
			}
		}
	}
	return out
}

// meanRMS is the average root-mean-square over fftSize frames
func meanRMS(samples []float64) float64 {
	var vals []float64
	for start := 0; start < len(samples); start += hopLength {
		end := min(start+fftSize, len(samples))
		var sum float64
		for _, s := range samples[start:end] {
			sum += s * s
		}
		vals = append(vals, math.Sqrt(sum/float64(end-start)))
		if end == len(samples) {
			break
		}
	}
	return mean(vals)
}

// zeroCrossingRates is the fraction of sign changes per frame
func zeroCrossingRates(samples []float64) []float64 {
	var out []float64
	for start := 0; start+1 < len(samples); start += hopLength {
		end := min(start+fftSize, len(samples))
		crossings := 0
		for i := start + 1; i < end; i++ {
			if (samples[i] >= 0) != (samples[i-1] >= 0) {
				crossings++
			}
		}
		out = append(out, float64(crossings)/float64(end-start))
		if end == len(samples) {
			break
		}
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}
