package color

import (
	"math"
	"math/rand/v2"
)

type rgb [3]float64

func dist2(a, b rgb) float64 {
	dr, dg, db := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return dr*dr + dg*dg + db*db
}

type clustering struct {
	centers     []rgb
	labels      []int
	compactness float64
}

// kmeans clusters points into k groups, restarting attempts times and
// keeping the tightest result
func kmeans(points []rgb, k, attempts, maxIter int, eps float64, rng *rand.Rand) clustering {
	k = min(k, len(points))
	best := clustering{compactness: math.Inf(1)}
	for a := 0; a < max(1, attempts); a++ {
		c := kmeansOnce(points, seedCenters(points, k, rng), maxIter, eps)
		if c.compactness < best.compactness {
			best = c
		}
	}
	return best
}

// seedCenters picks k starting centers with k-means++ weighting
func seedCenters(points []rgb, k int, rng *rand.Rand) []rgb {
	centers := make([]rgb, 0, k)
	centers = append(centers, points[rng.IntN(len(points))])

	d := make([]float64, len(points))
	for i, p := range points {
		d[i] = dist2(p, centers[0])
	}
	for len(centers) < k {
		var total float64
		for _, v := range d {
			total += v
		}
		idx := rng.IntN(len(points))
		if total > 0 {
			target := rng.Float64() * total
			for i, v := range d {
				target -= v
				if target <= 0 {
					idx = i
					break
				}
			}
		}
		centers = append(centers, points[idx])
		for i, p := range points {
			d[i] = math.Min(d[i], dist2(p, points[idx]))
		}
	}
	return centers
}

func kmeansOnce(points []rgb, centers []rgb, maxIter int, eps float64) clustering {
	k := len(centers)
	labels := make([]int, len(points))
	sums := make([]rgb, k)
	counts := make([]int, k)

	for iter := 0; iter < maxIter; iter++ {
		assign(points, centers, labels)

		clear(sums)
		clear(counts)
		for i, p := range points {
			l := labels[i]
			sums[l][0] += p[0]
			sums[l][1] += p[1]
			sums[l][2] += p[2]
			counts[l]++
		}

		var shift float64
		for c := range centers {
			if counts[c] == 0 {
				continue // empty cluster keeps its previous center
			}
			n := float64(counts[c])
			next := rgb{sums[c][0] / n, sums[c][1] / n, sums[c][2] / n}
			shift = math.Max(shift, math.Sqrt(dist2(next, centers[c])))
			centers[c] = next
		}
		if shift <= eps {
			break
		}
	}

	assign(points, centers, labels)
	var compactness float64
	for i, p := range points {
		compactness += dist2(p, centers[labels[i]])
	}
	return clustering{centers: centers, labels: labels, compactness: compactness}
}

// assign labels each point with its nearest center, ties going to the lower index
func assign(points, centers []rgb, labels []int) {
	for i, p := range points {
		best, bestD := 0, math.Inf(1)
		for c, center := range centers {
			if d := dist2(p, center); d < bestD {
				best, bestD = c, d
			}
		}
		labels[i] = best
	}
}
