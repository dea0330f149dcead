package tempo

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const (
	minBPM    = 30
	maxBPM    = 300
	priorBPM  = 120
	tightness = 100
)

// estimateTempo picks the onset autocorrelation peak within the BPM range,
// weighted by a log-normal prior centred on 120 BPM.
func estimateTempo(onset []float64, fps float64) float64 {
	minLag := max(1, int(math.Floor(60*fps/maxBPM)))
	maxLag := int(math.Ceil(60 * fps / minBPM))
	if maxLag >= len(onset) {
		maxLag = len(onset) - 1
	}
	if minLag >= maxLag {
		return 0
	}

	score := make([]float64, maxLag+2)
	best := -1
	for lag := minLag; lag <= maxLag; lag++ {
		var ac float64
		for t := 0; t+lag < len(onset); t++ {
			ac += onset[t] * onset[t+lag]
		}
		ac /= float64(len(onset) - lag)

		bpm := 60 * fps / float64(lag)
		prior := math.Exp(-0.5 * math.Pow(math.Log2(bpm/priorBPM), 2))
		score[lag] = ac * prior
		if best < 0 || score[lag] > score[best] {
			best = lag
		}
	}
	if best < 0 || score[best] <= 0 {
		return 0
	}

	lag := float64(best)
	if best > minLag && best < maxLag {
		// parabolic refinement between neighbouring lags
		a, b, c := score[best-1], score[best], score[best+1]
		if d := a - 2*b + c; d < 0 {
			lag += 0.5 * (a - c) / d
		}
	}
	return 60 * fps / lag
}

// trackBeats runs the dynamic programming beat tracker and returns beat
// positions in onset frames.
func trackBeats(onset []float64, fps, bpm float64) []int {
	n := len(onset)
	if n == 0 {
		return nil
	}
	std := stat.StdDev(onset, nil)
	if std == 0 || math.IsNaN(std) {
		return nil
	}

	period := 60 * fps / bpm
	local := localScore(onset, std, period)

	cum := make([]float64, n)
	back := make([]int, n)
	lo, hi := int(math.Round(2*period)), int(math.Round(period/2))
	for t := 0; t < n; t++ {
		back[t] = -1
		best := math.Inf(-1)
		for j := t - lo; j <= t-hi; j++ {
			if j < 0 {
				continue
			}
			gap := math.Log(float64(t-j) / period)
			s := cum[j] - tightness*gap*gap
			if s > best {
				best = s
				back[t] = j
			}
		}
		cum[t] = local[t]
		if back[t] >= 0 {
			cum[t] += best
		}
	}

	last := lastBeat(cum)
	if last < 0 {
		return nil
	}
	var beats []int
	for b := last; b >= 0; b = back[b] {
		beats = append(beats, b)
	}
	for i, j := 0, len(beats)-1; i < j; i, j = i+1, j-1 {
		beats[i], beats[j] = beats[j], beats[i]
	}
	return trimBeats(beats, local)
}

// localScore smooths the normalised onset envelope with a gaussian whose
// width tracks the beat period
func localScore(onset []float64, std, period float64) []float64 {
	half := int(math.Round(period))
	width := period / 32
	kernel := make([]float64, 2*half+1)
	for i := range kernel {
		d := float64(i-half) / width
		kernel[i] = math.Exp(-0.5 * d * d)
	}

	out := make([]float64, len(onset))
	for t := range onset {
		var acc float64
		for i, k := range kernel {
			j := t + i - half
			if j >= 0 && j < len(onset) {
				acc += k * onset[j] / std
			}
		}
		out[t] = acc
	}
	return out
}

// lastBeat is the final local maximum of the cumulative score that reaches
// half the median local-maximum height
func lastBeat(cum []float64) int {
	var maxima []int
	for t := range cum {
		left := t == 0 || cum[t] > cum[t-1]
		right := t == len(cum)-1 || cum[t] >= cum[t+1]
		if left && right {
			maxima = append(maxima, t)
		}
	}
	if len(maxima) == 0 {
		return -1
	}

	heights := make([]float64, len(maxima))
	for i, t := range maxima {
		heights[i] = cum[t]
	}
	sort.Float64s(heights)
	median := stat.Quantile(0.5, stat.Empirical, heights, nil)

	for i := len(maxima) - 1; i >= 0; i-- {
		if cum[maxima[i]] >= 0.5*median {
			return maxima[i]
		}
	}
	return -1
}

// trimBeats drops weak beats at either end of the sequence
func trimBeats(beats []int, local []float64) []int {
	if len(beats) == 0 {
		return beats
	}
	var sq float64
	for _, b := range beats {
		sq += local[b] * local[b]
	}
	threshold := 0.5 * math.Sqrt(sq/float64(len(beats)))

	start, end := 0, len(beats)
	for start < end && local[beats[start]] <= threshold {
		start++
	}
	for end > start && local[beats[end-1]] <= threshold {
		end--
	}
	return beats[start:end]
}
