// Package media exposes decoded video frames to the analyzers.
package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/kikiluvv/clipsignal/internal/ffmpeg"
)

var (
	// ErrStop may be returned from a Walk callback to end the walk early.
	ErrStop = ffmpeg.ErrStop

	// ErrUnreadable marks a clip that could not be opened or decoded.
	ErrUnreadable = errors.New("media unreadable")
)

// Clip is a decodable, ordered sequence of frames.
type Clip interface {
	Path() string
	FrameCount(ctx context.Context) (int, error)
	Walk(ctx context.Context, opts WalkOptions, fn func(index int, frame image.Image) error) error
}

// WalkOptions shapes the frames handed to a Walk callback.
// Zero Width/Height keep the native resolution.
type WalkOptions struct {
	Width     int
	Height    int
	Gray      bool
	MaxFrames int
}

// Frames is an in-memory Clip
type Frames struct {
	Name   string
	Images []image.Image
}

func (f *Frames) Path() string { return f.Name }

func (f *Frames) FrameCount(context.Context) (int, error) { return len(f.Images), nil }

func (f *Frames) Walk(_ context.Context, opts WalkOptions, fn func(int, image.Image) error) error {
	for i, img := range f.Images {
		if opts.MaxFrames > 0 && i >= opts.MaxFrames {
			break
		}

		var frame image.Image
		switch {
		case opts.Gray:
			frame = ToGray(img, opts.Width, opts.Height)
		case opts.Width > 0 && opts.Height > 0:
			frame = Resize(img, opts.Width, opts.Height)
		default:
			frame = img
		}

		if err := fn(i, frame); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Decoder is the subset of the ffmpeg executor a FileClip needs
type Decoder interface {
	ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error)
	StreamFrames(ctx context.Context, path string, opts ffmpeg.FrameOptions, fn func(int, image.Image) error) error
}

// FileClip decodes frames from a file on disk
type FileClip struct {
	dec  Decoder
	path string

	mu   sync.Mutex
	info *ffmpeg.VideoInfo
}

// Open returns a clip backed by path. Nothing is read until first use.
func Open(dec Decoder, path string) *FileClip {
	return &FileClip{dec: dec, path: path}
}

func (c *FileClip) Path() string { return c.path }

// Info probes the file once and caches the result
func (c *FileClip) Info(ctx context.Context) (*ffmpeg.VideoInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.info != nil {
		return c.info, nil
	}
	info, err := c.dec.ProbeVideo(ctx, c.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if !info.HasVideo {
		return nil, fmt.Errorf("%w: %s has no video stream", ErrUnreadable, c.path)
	}
	c.info = info
	return info, nil
}

func (c *FileClip) FrameCount(ctx context.Context) (int, error) {
	info, err := c.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.EstimatedFrames(), nil
}

func (c *FileClip) Walk(ctx context.Context, opts WalkOptions, fn func(int, image.Image) error) error {
	format := ffmpeg.PixelRGB24
	if opts.Gray {
		format = ffmpeg.PixelGray
	}

	err := c.dec.StreamFrames(ctx, c.path, ffmpeg.FrameOptions{
		Width:     opts.Width,
		Height:    opts.Height,
		Format:    format,
		MaxFrames: opts.MaxFrames,
	}, fn)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return nil
}

// FrameRate returns the clip's frames per second when known, else 0
func FrameRate(ctx context.Context, clip Clip) float64 {
	c, ok := clip.(interface {
		Info(context.Context) (*ffmpeg.VideoInfo, error)
	})
	if !ok {
		return 0
	}
	info, err := c.Info(ctx)
	if err != nil {
		return 0
	}
	return info.FPS
}
