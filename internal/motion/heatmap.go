package motion

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"github.com/google/renameio/v2"
	"github.com/kikiluvv/clipsignal/internal/media"
)

// BuildHeatmap accumulates frame differences over the start of the clip and
// overlays them, JET-coloured, on the first frame.
func (a *Analyzer) BuildHeatmap(ctx context.Context, clip media.Clip) (image.Image, error) {
	var (
		first *image.RGBA
		prev  *image.Gray
		acc   []float64
		read  int
	)

	opts := media.WalkOptions{MaxFrames: a.cfg.HeatmapMaxFrames}
	err := clip.Walk(ctx, opts, func(index int, frame image.Image) error {
		if read >= a.cfg.HeatmapMaxFrames {
			return media.ErrStop
		}
		gray := media.ToGray(frame, 0, 0)
		if first == nil {
			b := frame.Bounds()
			first = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
			draw.Draw(first, first.Bounds(), frame, b.Min, draw.Src)
			acc = make([]float64, b.Dx()*b.Dy())
		} else {
			w, h := first.Rect.Dx(), first.Rect.Dy()
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					d := float64(gray.GrayAt(x, y).Y) - float64(prev.GrayAt(x, y).Y)
					acc[y*w+x] += math.Abs(d)
				}
			}
		}
		prev = gray
		read++
		return nil
	})
	if first == nil {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s has no frames", ErrMediaUnreadable, clip.Path())
	}
	if err != nil {
		a.logger.Warn().Err(err).Str("clip", clip.Path()).Int("frames", read).Msg("heatmap built from partial clip")
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range acc {
		acc[i] /= float64(read)
		lo = math.Min(lo, acc[i])
		hi = math.Max(hi, acc[i])
	}

	out := image.NewRGBA(first.Rect)
	w := first.Rect.Dx()
	for i, v := range acc {
		var norm float64
		if hi > lo {
			norm = (v - lo) / (hi - lo)
		}
		heat := jet(norm)
		base := first.RGBAAt(i%w, i/w)
		out.SetRGBA(i%w, i/w, color.RGBA{
			R: blend(base.R, heat.R),
			G: blend(base.G, heat.G),
			B: blend(base.B, heat.B),
			A: 255,
		})
	}
	return out, nil
}

func blend(base, heat uint8) uint8 {
	return uint8(math.Round(0.6*float64(base) + 0.4*float64(heat)))
}

// jet maps v in [0,1] onto the blue-cyan-yellow-red ramp
func jet(v float64) color.RGBA {
	// quantise like an 8-bit lookup
	v = math.Round(v*255) / 255
	channel := func(center float64) uint8 {
		c := 1.5 - math.Abs(4*v-center)
		return uint8(math.Round(255 * math.Min(1, math.Max(0, c))))
	}
	return color.RGBA{R: channel(3), G: channel(2), B: channel(1), A: 255}
}

// SaveHeatmap writes img as a PNG, replacing path atomically
func SaveHeatmap(path string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode heatmap: %w", err)
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write heatmap %s: %w", path, err)
	}
	return nil
}
