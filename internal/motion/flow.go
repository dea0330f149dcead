package motion

import (
	"image"
	"math"
)

// FlowParams tunes the pyramidal dense optical flow
type FlowParams struct {
	PyrScale   float64 // size ratio between pyramid layers
	Levels     int     // layers including the full-resolution one
	WinSize    int     // side of the square integration window
	Iterations int     // refinement passes per layer
	Sigma      float64 // gaussian pre-smoothing
}

// DefaultFlowParams mirrors the classic Farneback settings
func DefaultFlowParams() FlowParams {
	return FlowParams{
		PyrScale:   0.5,
		Levels:     3,
		WinSize:    15,
		Iterations: 3,
		Sigma:      1.2,
	}
}

// plane is a single-channel float image
type plane struct {
	w, h int
	pix  []float32
}

func newPlane(w, h int) *plane {
	return &plane{w: w, h: h, pix: make([]float32, w*h)}
}

func planeFromGray(g *image.Gray) *plane {
	b := g.Bounds()
	p := newPlane(b.Dx(), b.Dy())
	for y := 0; y < p.h; y++ {
		row := g.Pix[(y)*g.Stride : (y)*g.Stride+p.w]
		for x, v := range row {
			p.pix[y*p.w+x] = float32(v)
		}
	}
	return p
}

func (p *plane) at(x, y int) float32 {
	x = min(max(x, 0), p.w-1)
	y = min(max(y, 0), p.h-1)
	return p.pix[y*p.w+x]
}

// sample reads p at a fractional position with bilinear interpolation,
// clamping to the border.
func (p *plane) sample(x, y float32) float32 {
	x0 := int(math.Floor(float64(x)))
	y0 := int(math.Floor(float64(y)))
	fx := x - float32(x0)
	fy := y - float32(y0)

	a := p.at(x0, y0)
	b := p.at(x0+1, y0)
	c := p.at(x0, y0+1)
	d := p.at(x0+1, y0+1)

	top := a + (b-a)*fx
	bottom := c + (d-c)*fx
	return top + (bottom-top)*fy
}

func gaussianKernel(sigma float64) []float32 {
	radius := int(math.Ceil(3 * sigma))
	k := make([]float32, 2*radius+1)
	var sum float32
	for i := range k {
		d := float64(i - radius)
		k[i] = float32(math.Exp(-d * d / (2 * sigma * sigma)))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// blur applies a separable gaussian
func blur(src *plane, sigma float64) *plane {
	if sigma <= 0 {
		return src
	}
	k := gaussianKernel(sigma)
	r := len(k) / 2

	tmp := newPlane(src.w, src.h)
	for y := 0; y < src.h; y++ {
		for x := 0; x < src.w; x++ {
			var acc float32
			for i, kv := range k {
				acc += kv * src.at(x+i-r, y)
			}
			tmp.pix[y*src.w+x] = acc
		}
	}

	out := newPlane(src.w, src.h)
	for y := 0; y < src.h; y++ {
		for x := 0; x < src.w; x++ {
			var acc float32
			for i, kv := range k {
				acc += kv * tmp.at(x, y+i-r)
			}
			out.pix[y*src.w+x] = acc
		}
	}
	return out
}

// downsample shrinks p by scale after anti-alias smoothing
func downsample(p *plane, scale float64) *plane {
	w := max(1, int(math.Round(float64(p.w)*scale)))
	h := max(1, int(math.Round(float64(p.h)*scale)))
	smooth := blur(p, 1.0)

	out := newPlane(w, h)
	sx := float32(p.w) / float32(w)
	sy := float32(p.h) / float32(h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.pix[y*w+x] = smooth.sample((float32(x)+0.5)*sx-0.5, (float32(y)+0.5)*sy-0.5)
		}
	}
	return out
}

func pyramid(p *plane, params FlowParams) []*plane {
	levels := []*plane{p}
	for l := 1; l < params.Levels; l++ {
		prev := levels[l-1]
		if prev.w < params.WinSize || prev.h < params.WinSize {
			break
		}
		levels = append(levels, downsample(prev, params.PyrScale))
	}
	return levels
}

// boxSum returns, per pixel, the sum of src over the window of radius r
// clipped to the image.
func boxSum(src []float32, w, h, r int) []float64 {
	stride := w + 1
	integral := make([]float64, stride*(h+1))
	for y := 0; y < h; y++ {
		var row float64
		for x := 0; x < w; x++ {
			row += float64(src[y*w+x])
			integral[(y+1)*stride+x+1] = integral[y*stride+x+1] + row
		}
	}

	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		y0, y1 := max(y-r, 0), min(y+r+1, h)
		for x := 0; x < w; x++ {
			x0, x1 := max(x-r, 0), min(x+r+1, w)
			out[y*w+x] = integral[y1*stride+x1] - integral[y0*stride+x1] - integral[y1*stride+x0] + integral[y0*stride+x0]
		}
	}
	return out
}

// refine runs iterative Lucas-Kanade on one pyramid layer, updating u and v in place
func refine(i0, i1 *plane, u, v []float32, params FlowParams) {
	w, h := i0.w, i0.h
	n := w * h
	r := params.WinSize / 2

	ix := make([]float32, n)
	iy := make([]float32, n)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ix[y*w+x] = (i0.at(x+1, y) - i0.at(x-1, y)) / 2
			iy[y*w+x] = (i0.at(x, y+1) - i0.at(x, y-1)) / 2
		}
	}

	prod := make([]float32, n)
	mul := func(a, b []float32) []float64 {
		for i := range prod {
			prod[i] = a[i] * b[i]
		}
		return boxSum(prod, w, h, r)
	}
	axx := mul(ix, ix)
	axy := mul(ix, iy)
	ayy := mul(iy, iy)

	diff := make([]float32, n)
	maxStep := float32(r)
	for it := 0; it < params.Iterations; it++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				diff[i] = i1.sample(float32(x)+u[i], float32(y)+v[i]) - i0.pix[i]
			}
		}
		bx := mul(ix, diff)
		by := mul(iy, diff)

		for i := 0; i < n; i++ {
			a, b, c := axx[i], axy[i], ayy[i]
			det := a*c - b*b
			// smallest eigenvalue guards flat and edge-only windows
			lmin := ((a + c) - math.Sqrt((a-c)*(a-c)+4*b*b)) / 2
			if det < 1e-9 || lmin < 1e-3 {
				continue
			}
			du := float32(-(c*bx[i] - b*by[i]) / det)
			dv := float32((b*bx[i] - a*by[i]) / det)
			u[i] += clampStep(du, maxStep)
			v[i] += clampStep(dv, maxStep)
		}
	}
}

func clampStep(d, limit float32) float32 {
	return min(max(d, -limit), limit)
}

// upscaleFlow resamples a coarse flow field onto a finer grid
func upscaleFlow(u, v []float32, from, to *plane) ([]float32, []float32) {
	cu := &plane{w: from.w, h: from.h, pix: u}
	cv := &plane{w: from.w, h: from.h, pix: v}
	sx := float32(from.w) / float32(to.w)
	sy := float32(from.h) / float32(to.h)

	nu := make([]float32, to.w*to.h)
	nv := make([]float32, to.w*to.h)
	for y := 0; y < to.h; y++ {
		for x := 0; x < to.w; x++ {
			fx := (float32(x)+0.5)*sx - 0.5
			fy := (float32(y)+0.5)*sy - 0.5
			nu[y*to.w+x] = cu.sample(fx, fy) / sx
			nv[y*to.w+x] = cv.sample(fx, fy) / sy
		}
	}
	return nu, nv
}

// denseFlow estimates per-pixel motion from prev to next and returns the
// magnitude field at full resolution.
func denseFlow(prev, next *plane, params FlowParams) []float32 {
	p0 := pyramid(blur(prev, params.Sigma), params)
	p1 := pyramid(blur(next, params.Sigma), params)
	levels := min(len(p0), len(p1))

	top := p0[levels-1]
	u := make([]float32, top.w*top.h)
	v := make([]float32, top.w*top.h)

	for l := levels - 1; l >= 0; l-- {
		if l < levels-1 {
			u, v = upscaleFlow(u, v, p0[l+1], p0[l])
		}
		refine(p0[l], p1[l], u, v, params)
	}

	mag := make([]float32, len(u))
	for i := range u {
		mag[i] = float32(math.Hypot(float64(u[i]), float64(v[i])))
	}
	return mag
}
