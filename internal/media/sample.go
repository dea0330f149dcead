package media

import (
	"context"
	"fmt"
	"image"
)

// Sampled is a frame tagged with its position in the clip
type Sampled struct {
	Index int
	Frame image.Image
}

// SampleFrames decodes n frames spread evenly over the clip, avoiding the
// first and last frame (positions (i+1)*total/(n+1)).
func SampleFrames(ctx context.Context, clip Clip, n int) ([]Sampled, error) {
	total, err := clip.FrameCount(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 || n <= 0 {
		return nil, fmt.Errorf("%w: %s has no frames", ErrUnreadable, clip.Path())
	}

	wanted := make(map[int]bool, n)
	last := 0
	for i := 0; i < n; i++ {
		idx := (i + 1) * total / (n + 1)
		if idx >= total {
			idx = total - 1
		}
		wanted[idx] = true
		last = max(last, idx)
	}

	var out []Sampled
	err = clip.Walk(ctx, WalkOptions{}, func(index int, frame image.Image) error {
		if wanted[index] {
			out = append(out, Sampled{Index: index, Frame: frame})
		}
		if index >= last {
			return ErrStop
		}
		return nil
	})
	if err != nil {
		return out, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no frames decoded from %s", ErrUnreadable, clip.Path())
	}
	return out, nil
}

// Images strips the indices from sampled frames
func Images(samples []Sampled) []image.Image {
	out := make([]image.Image, len(samples))
	for i, s := range samples {
		out[i] = s.Frame
	}
	return out
}
