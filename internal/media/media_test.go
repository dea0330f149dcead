package media

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func stripes(w, h int, vertical bool) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := y
			if vertical {
				v = x
			}
			if (v/8)%2 == 0 {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

func TestToGrayResizes(t *testing.T) {
	g := ToGray(solid(64, 48, color.RGBA{255, 255, 255, 255}), 32, 24)
	assert.Equal(t, image.Rect(0, 0, 32, 24), g.Bounds())
	assert.Equal(t, uint8(255), g.GrayAt(10, 10).Y)
}

func TestToGrayUsesLuma(t *testing.T) {
	g := ToGray(solid(4, 4, color.RGBA{255, 0, 0, 255}), 0, 0)
	// BT.601 weight for red
	assert.InDelta(t, 76, int(g.GrayAt(0, 0).Y), 1)
}

func TestFramesWalk(t *testing.T) {
	clip := &Frames{Name: "mem", Images: []image.Image{
		solid(8, 8, color.Black), solid(8, 8, color.White), solid(8, 8, color.Black),
	}}

	var seen []int
	err := clip.Walk(context.Background(), WalkOptions{Gray: true, Width: 4, Height: 4}, func(i int, f image.Image) error {
		seen = append(seen, i)
		_, ok := f.(*image.Gray)
		assert.True(t, ok)
		assert.Equal(t, 4, f.Bounds().Dx())
		if i == 1 {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, seen)

	boom := errors.New("boom")
	err = clip.Walk(context.Background(), WalkOptions{}, func(int, image.Image) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestSampleFrames(t *testing.T) {
	images := make([]image.Image, 8)
	for i := range images {
		images[i] = solid(4, 4, color.Gray{Y: uint8(i * 10)})
	}

	samples, err := SampleFrames(context.Background(), &Frames{Images: images}, 3)
	require.NoError(t, err)

	var idx []int
	for _, s := range samples {
		idx = append(idx, s.Index)
	}
	assert.Equal(t, []int{2, 4, 6}, idx)
	assert.Len(t, Images(samples), 3)
}

func TestSampleFramesEmptyClip(t *testing.T) {
	_, err := SampleFrames(context.Background(), &Frames{Name: "empty"}, 3)
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestSelectKeyFramesDropsDuplicates(t *testing.T) {
	h := stripes(64, 64, false)
	v := stripes(64, 64, true)
	samples := []Sampled{{0, h}, {1, h}, {2, v}, {3, h}}

	frames, err := SelectKeyFrames(samples, 0)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, 0, frames[0].Index)
	assert.Equal(t, 2, frames[1].Index)
	assert.NotEqual(t, frames[0].Hash, frames[1].Hash)

	rep, ok := Representative(frames)
	require.True(t, ok)
	assert.Equal(t, 2, rep.Index)
}

func TestRepresentativeEmpty(t *testing.T) {
	_, ok := Representative(nil)
	assert.False(t, ok)
}
