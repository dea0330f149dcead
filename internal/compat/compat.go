// Package compat judges whether a clip will autoplay in a browser.
package compat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kikiluvv/clipsignal/internal/ffmpeg"
	"github.com/rs/zerolog"
)

var (
	ErrFileNotFound = errors.New("file not found")
	// ErrProbeUnavailable marks codec inspection that could not run
	ErrProbeUnavailable = errors.New("codec probe unavailable")
)

var (
	webContainers  = []string{".mp4", ".webm", ".ogv"}
	webVideoCodecs = []string{"h264", "vp8", "vp9", "av1"}
	webAudioCodecs = []string{"aac", "mp3", "vorbis", "opus"}

	// issue substrings that fail compatibility outside mp4
	criticalMarkers = []string{"may not be web-compatible", "Unknown codec"}
)

const (
	MoovStart   = "start"
	MoovEnd     = "end"
	MoovUnknown = "unknown"

	noStream = "none"
)

// Signal is the compatibility verdict for one file
type Signal struct {
	Container        string        `json:"container"`
	VideoCodec       string        `json:"video_codec"`
	AudioCodec       string        `json:"audio_codec"`
	CodecsAssumed    bool          `json:"codecs_assumed"`
	FastStart        FastStart     `json:"fast_start"`
	ProgressiveReady bool          `json:"progressive_ready"`
	MoovPosition     string        `json:"moov_position"`
	Issues           []string      `json:"issues"`
	Compatible       bool          `json:"compatible"`
	FileSizeMB       float64       `json:"file_size_mb"`
	Width            int           `json:"width"`
	Height           int           `json:"height"`
	FPS              float64       `json:"fps"`
	Duration         time.Duration `json:"duration"`
}

// Prober reads stream metadata. The ffmpeg executor satisfies it.
type Prober interface {
	ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error)
}

type Config struct {
	ScanLimit   int64
	LargeFileMB float64
}

func DefaultConfig() Config {
	return Config{ScanLimit: DefaultScanLimit, LargeFileMB: 50}
}

type Analyzer struct {
	logger zerolog.Logger
	prober Prober
	cfg    Config
}

// NewAnalyzer returns an analyzer. prober may be nil, in which case codecs
// are assumed from the file extension.
func NewAnalyzer(logger zerolog.Logger, prober Prober, cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = def.ScanLimit
	}
	if cfg.LargeFileMB <= 0 {
		cfg.LargeFileMB = def.LargeFileMB
	}
	return &Analyzer{logger: logger, prober: prober, cfg: cfg}
}

// Analyze inspects path. Only a missing file is an error; every other
// problem is reported through Signal.Issues.
func (a *Analyzer) Analyze(ctx context.Context, path string) (Signal, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Signal{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return Signal{}, fmt.Errorf("stat %s: %w", path, err)
	}

	ext := filepath.Ext(path)
	sizeMB := float64(st.Size()) / (1024 * 1024)
	sig := Signal{
		Container:    strings.ToLower(ext),
		MoovPosition: MoovUnknown,
		Issues:       []string{},
		FileSizeMB:   math.Round(sizeMB*100) / 100,
	}

	if !slices.Contains(webContainers, sig.Container) {
		sig.Issues = append(sig.Issues, fmt.Sprintf("Container format '%s' may not be web-compatible", ext))
	}

	info, err := a.probe(ctx, path)
	if err != nil {
		a.logger.Debug().Err(err).Str("file", path).Msg("falling back to extension codecs")
		a.assumeCodecs(&sig)
	} else {
		a.inspectCodecs(&sig, info)
	}

	if sig.Container == ".mp4" || (info != nil && strings.Contains(info.FormatName, "mp4")) {
		a.scan(&sig, path, st.Size())
	}

	if sizeMB > a.cfg.LargeFileMB {
		sig.Issues = append(sig.Issues, fmt.Sprintf("Large file size (%.1fMB) may cause buffering", sizeMB))
	}

	sig.Compatible = compatible(sig)
	return sig, nil
}

func (a *Analyzer) probe(ctx context.Context, path string) (*ffmpeg.VideoInfo, error) {
	if a.prober == nil {
		return nil, ErrProbeUnavailable
	}
	info, err := a.prober.ProbeVideo(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProbeUnavailable, err)
	}
	return info, nil
}

func (a *Analyzer) inspectCodecs(sig *Signal, info *ffmpeg.VideoInfo) {
	sig.VideoCodec, sig.AudioCodec = noStream, noStream
	if info.HasVideo {
		sig.VideoCodec = strings.ToLower(info.VideoCodec)
		if !slices.Contains(webVideoCodecs, sig.VideoCodec) {
			sig.Issues = append(sig.Issues, fmt.Sprintf("Video codec '%s' may not be web-compatible", sig.VideoCodec))
		}
	}
	if info.HasAudio {
		sig.AudioCodec = strings.ToLower(info.AudioCodec)
		if !slices.Contains(webAudioCodecs, sig.AudioCodec) {
			sig.Issues = append(sig.Issues, fmt.Sprintf("Audio codec '%s' may not be web-compatible", sig.AudioCodec))
		}
	}

	sig.Width, sig.Height = info.Width, info.Height
	sig.FPS = info.FPS
	sig.Duration = info.Duration
}

func (a *Analyzer) assumeCodecs(sig *Signal) {
	sig.CodecsAssumed = true
	switch sig.Container {
	case ".mp4":
		sig.VideoCodec, sig.AudioCodec = "h264 (assumed)", "aac (assumed)"
	case ".webm":
		sig.VideoCodec, sig.AudioCodec = "vp8 (assumed)", "vorbis (assumed)"
	default:
		sig.VideoCodec, sig.AudioCodec = "unknown", "unknown"
		sig.Issues = append(sig.Issues, "Unknown codec - install ffmpeg for detection")
	}
}

func (a *Analyzer) scan(sig *Signal, path string, size int64) {
	f, err := os.Open(path)
	if err != nil {
		a.logger.Debug().Err(err).Str("file", path).Msg("box scan skipped")
		return
	}
	defer f.Close()

	fs, err := ScanBoxes(f, size, a.cfg.ScanLimit)
	if err != nil {
		a.logger.Debug().Err(err).Str("file", path).Msg("box scan inconclusive")
	}
	sig.FastStart = fs
	sig.ProgressiveReady = fs == Ready
	switch fs {
	case Ready:
		sig.MoovPosition = MoovStart
	case NotReady:
		sig.MoovPosition = MoovEnd
	}
}

func compatible(sig Signal) bool {
	if !slices.Contains(webContainers, sig.Container) {
		return false
	}
	if sig.Container == ".mp4" {
		return true
	}
	for _, issue := range sig.Issues {
		for _, marker := range criticalMarkers {
			if strings.Contains(issue, marker) {
				return false
			}
		}
	}
	return true
}
