package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"io"
	"strconv"
)

// StreamFrames decodes input to raw frames and calls fn for each one in order.
// fn may return ErrStop to end decoding early.
func (e *Executor) StreamFrames(ctx context.Context, input string, opts FrameOptions, fn func(index int, frame image.Image) error) error {
	format := opts.Format
	if format == "" {
		format = PixelRGB24
	}

	width, height := opts.Width, opts.Height
	if width <= 0 || height <= 0 {
		info, err := e.ProbeVideo(ctx, input)
		if err != nil {
			return err
		}
		if !info.HasVideo || info.Width == 0 || info.Height == 0 {
			return fmt.Errorf("%s has no video stream", input)
		}
		width, height = info.Width, info.Height
	}

	filter := NewFilterBuilder().
		Scale(opts.Width, opts.Height).
		Format(string(format)).
		Build()

	args := []string{"-i", input, "-an", "-vf", filter, "-pix_fmt", string(format), "-f", "rawvideo"}
	if opts.MaxFrames > 0 {
		args = append(args, "-frames:v", strconv.Itoa(opts.MaxFrames))
	}
	args = append(args, "pipe:1")

	bytesPerPixel := 3
	if format == PixelGray {
		bytesPerPixel = 1
	}
	frameSize := width * height * bytesPerPixel

	return e.Run(ctx, RunOptions{
		Args: args,
		ProgressHandler: func(p *Progress) {
			e.logger.Debug().Int("frame", p.Frame).Str("speed", p.Speed).Msg("decoding frames")
		},
		Stdout: func(r io.Reader) error {
			br := bufio.NewReaderSize(r, frameSize)
			buf := make([]byte, frameSize)
			for index := 0; ; index++ {
				if _, err := io.ReadFull(br, buf); err != nil {
					if err == io.EOF || err == io.ErrUnexpectedEOF {
						return nil
					}
					return err
				}
				if err := fn(index, rawToImage(buf, width, height, format)); err != nil {
					return err
				}
			}
		},
	})
}

// rawToImage copies a packed raw frame into a new image
func rawToImage(buf []byte, width, height int, format PixelFormat) image.Image {
	rect := image.Rect(0, 0, width, height)
	if format == PixelGray {
		img := image.NewGray(rect)
		copy(img.Pix, buf)
		return img
	}

	img := image.NewRGBA(rect)
	for i, j := 0, 0; i+2 < len(buf); i, j = i+3, j+4 {
		img.Pix[j] = buf[i]
		img.Pix[j+1] = buf[i+1]
		img.Pix[j+2] = buf[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}
