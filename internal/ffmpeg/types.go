package ffmpeg

import (
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned by New when ffmpeg or ffprobe is missing from PATH.
	ErrNotFound = errors.New("ffmpeg binaries not found")

	// ErrStop may be returned from a frame callback to end decoding early.
	ErrStop = errors.New("stop decoding")
)

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath     string
	FormatName   string
	Size         int64
	Duration     time.Duration
	Width        int
	Height       int
	FPS          float64
	FrameCount   int
	Bitrate      int64
	VideoCodec   string
	HasVideo     bool
	HasAudio     bool
	AudioCodec   string
	AudioBitrate int64
}

// EstimatedFrames returns the container frame count, falling back to duration*fps
func (v *VideoInfo) EstimatedFrames() int {
	if v.FrameCount > 0 {
		return v.FrameCount
	}
	if v.FPS <= 0 || v.Duration <= 0 {
		return 0
	}
	return int(v.Duration.Seconds()*v.FPS + 0.5)
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	Time    string
	Speed   string
}

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler func(*Progress)
	LogHandler      func(line string)
	Stdout          func(r io.Reader) error
}

// PixelFormat selects the raw frame layout produced by StreamFrames
type PixelFormat string

const (
	PixelGray  PixelFormat = "gray"
	PixelRGB24 PixelFormat = "rgb24"
)

// FrameOptions configures raw frame decoding.
// Zero Width/Height keep the source resolution.
type FrameOptions struct {
	Width     int
	Height    int
	Format    PixelFormat
	MaxFrames int
}

// AudioFormat defines PCM decoding options
type AudioFormat struct {
	SampleRate int
	Channels   int
}

// DefaultAnalysisFormat returns the mono 22.05kHz format used for tempo analysis
func DefaultAnalysisFormat() AudioFormat {
	return AudioFormat{
		SampleRate: 22050,
		Channels:   1,
	}
}
