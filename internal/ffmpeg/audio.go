package ffmpeg

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"
)

// DecodeAudio decodes the audio track of input to float PCM samples.
// At most limit of audio is read when limit > 0. Multi-channel output is interleaved.
func (e *Executor) DecodeAudio(ctx context.Context, input string, format AudioFormat, limit time.Duration) ([]float64, error) {
	e.logger.Debug().
		Str("input", input).
		Int("sample_rate", format.SampleRate).
		Dur("limit", limit).
		Msg("decoding audio")

	var args []string
	if limit > 0 {
		args = append(args, "-t", strconv.FormatFloat(limit.Seconds(), 'f', 3, 64))
	}
	args = append(args,
		"-i", input,
		"-vn", // no video
		"-ac", strconv.Itoa(format.Channels),
		"-ar", strconv.Itoa(format.SampleRate),
		"-acodec", "pcm_f32le",
		"-f", "f32le",
		"pipe:1",
	)

	var samples []float64
	opts := RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("audio decode")
		},
		Stdout: func(r io.Reader) error {
			var err error
			samples, err = readFloat32LE(r)
			return err
		},
	}

	if err := e.Run(ctx, opts); err != nil {
		return nil, fmt.Errorf("decode audio %s: %w", input, err)
	}

	return samples, nil
}

// readFloat32LE reads little-endian float32 samples until EOF
func readFloat32LE(r io.Reader) ([]float64, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	var samples []float64
	buf := make([]byte, 4)
	for {
		if _, err := io.ReadFull(br, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return samples, nil
			}
			return samples, err
		}
		samples = append(samples, float64(math.Float32frombits(binary.LittleEndian.Uint32(buf))))
	}
}
