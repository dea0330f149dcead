package motion

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/kikiluvv/clipsignal/internal/media"
)

// DetectSceneChanges returns the indices of frames that start a new shot.
// Frame 0 is always included. A non-positive threshold uses the configured
// default.
func (a *Analyzer) DetectSceneChanges(ctx context.Context, clip media.Clip, threshold float64) ([]int, error) {
	if threshold <= 0 {
		threshold = a.cfg.SceneThreshold
	}

	var (
		prev    *image.Gray
		changes []int
	)
	opts := media.WalkOptions{Width: a.cfg.Width, Height: a.cfg.Height, Gray: true}
	err := clip.Walk(ctx, opts, func(index int, frame image.Image) error {
		cur := media.ToGray(frame, a.cfg.Width, a.cfg.Height)
		if prev == nil {
			changes = append(changes, index)
		} else if meanAbsDiff(prev, cur) > threshold {
			changes = append(changes, index)
		}
		prev = cur
		return nil
	})
	if err != nil && prev == nil {
		return nil, err
	}
	if prev == nil {
		return nil, fmt.Errorf("%w: %s has no frames", ErrMediaUnreadable, clip.Path())
	}
	if err != nil {
		a.logger.Warn().Err(err).Str("clip", clip.Path()).Msg("scene scan stopped early")
	}

	a.logger.Debug().Str("clip", clip.Path()).Int("scenes", len(changes)).Msg("scene changes detected")
	return changes, nil
}

func meanAbsDiff(a, b *image.Gray) float64 {
	w := min(a.Rect.Dx(), b.Rect.Dx())
	h := min(a.Rect.Dy(), b.Rect.Dy())
	if w == 0 || h == 0 {
		return 0
	}
	var sum float64
	for y := 0; y < h; y++ {
		ra := a.Pix[y*a.Stride : y*a.Stride+w]
		rb := b.Pix[y*b.Stride : y*b.Stride+w]
		for x := range ra {
			sum += math.Abs(float64(ra[x]) - float64(rb[x]))
		}
	}
	return sum / float64(w*h)
}
