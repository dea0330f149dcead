package compat

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kikiluvv/clipsignal/internal/ffmpeg"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(typ string, payload int) []byte {
	b := make([]byte, 8+payload)
	binary.BigEndian.PutUint32(b[:4], uint32(8+payload))
	copy(b[4:8], typ)
	return b
}

func largeBox(typ string, payload int) []byte {
	b := make([]byte, 16+payload)
	binary.BigEndian.PutUint32(b[:4], 1)
	copy(b[4:8], typ)
	binary.BigEndian.PutUint64(b[8:16], uint64(16+payload))
	return b
}

func scan(t *testing.T, limit int64, boxes ...[]byte) (FastStart, error) {
	t.Helper()
	data := bytes.Join(boxes, nil)
	return ScanBoxes(bytes.NewReader(data), int64(len(data)), limit)
}

func TestScanBoxesOrder(t *testing.T) {
	fs, err := scan(t, 0, box("ftyp", 16), box("moov", 32), box("mdat", 64))
	require.NoError(t, err)
	assert.Equal(t, Ready, fs)

	fs, err = scan(t, 0, box("ftyp", 16), box("mdat", 64), box("moov", 32))
	require.NoError(t, err)
	assert.Equal(t, NotReady, fs)

	// no ftyp is required
	fs, err = scan(t, 0, box("free", 4), box("moov", 0))
	require.NoError(t, err)
	assert.Equal(t, Ready, fs)
}

func TestScanBoxesLargeSize(t *testing.T) {
	fs, err := scan(t, 0, box("ftyp", 16), largeBox("free", 40), box("moov", 8))
	require.NoError(t, err)
	assert.Equal(t, Ready, fs)

	bad := largeBox("free", 0)
	binary.BigEndian.PutUint64(bad[8:16], 4)
	fs, err = scan(t, 0, bad, box("moov", 8))
	assert.Equal(t, Inconclusive, fs)
	assert.ErrorIs(t, err, ErrMalformedBox)
}

func TestScanBoxesMalformed(t *testing.T) {
	bad := box("free", 0)
	binary.BigEndian.PutUint32(bad[:4], 3)
	fs, err := scan(t, 0, box("ftyp", 8), bad, box("moov", 8))
	assert.Equal(t, Inconclusive, fs)
	assert.ErrorIs(t, err, ErrMalformedBox)
}

func TestScanBoxesToEndOfFile(t *testing.T) {
	open := box("free", 8)
	binary.BigEndian.PutUint32(open[:4], 0)
	fs, err := scan(t, 0, box("ftyp", 8), open)
	assert.NoError(t, err)
	assert.Equal(t, Inconclusive, fs)

	fs, err = scan(t, 0, box("ftyp", 8), box("free", 8))
	assert.NoError(t, err)
	assert.Equal(t, Inconclusive, fs)
}

func TestScanBoxesLimit(t *testing.T) {
	fs, err := scan(t, 64, box("ftyp", 16), box("free", 100), box("moov", 8))
	assert.Equal(t, Inconclusive, fs)
	assert.ErrorIs(t, err, ErrScanTruncated)

	// the same layout resolves once the limit covers the moov header
	fs, err = scan(t, 256, box("ftyp", 16), box("free", 100), box("moov", 8))
	require.NoError(t, err)
	assert.Equal(t, Ready, fs)
}

type fakeProber struct {
	info *ffmpeg.VideoInfo
	err  error
}

func (f fakeProber) ProbeVideo(context.Context, string) (*ffmpeg.VideoInfo, error) {
	return f.info, f.err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func fastStartMP4() []byte {
	return bytes.Join([][]byte{box("ftyp", 16), box("moov", 32), box("mdat", 64)}, nil)
}

func TestAnalyzeMissingFile(t *testing.T) {
	a := NewAnalyzer(zerolog.Nop(), nil, DefaultConfig())
	_, err := a.Analyze(context.Background(), filepath.Join(t.TempDir(), "gone.mp4"))
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestAnalyzeFallbackMP4(t *testing.T) {
	path := writeFile(t, "clip.mp4", fastStartMP4())
	sig, err := NewAnalyzer(zerolog.Nop(), nil, DefaultConfig()).Analyze(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, ".mp4", sig.Container)
	assert.Equal(t, "h264 (assumed)", sig.VideoCodec)
	assert.Equal(t, "aac (assumed)", sig.AudioCodec)
	assert.True(t, sig.CodecsAssumed)
	assert.Equal(t, Ready, sig.FastStart)
	assert.True(t, sig.ProgressiveReady)
	assert.Equal(t, MoovStart, sig.MoovPosition)
	assert.Empty(t, sig.Issues)
	assert.True(t, sig.Compatible)
}

func TestAnalyzeFallbackWebM(t *testing.T) {
	path := writeFile(t, "clip.webm", []byte("webm"))
	sig, err := NewAnalyzer(zerolog.Nop(), nil, DefaultConfig()).Analyze(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "vp8 (assumed)", sig.VideoCodec)
	assert.Equal(t, "vorbis (assumed)", sig.AudioCodec)
	assert.Equal(t, MoovUnknown, sig.MoovPosition)
	assert.False(t, sig.ProgressiveReady)
	assert.True(t, sig.Compatible)
}

func TestAnalyzeMKVNeverCompatible(t *testing.T) {
	path := writeFile(t, "clip.MKV", []byte("mkv"))

	sig, err := NewAnalyzer(zerolog.Nop(), nil, DefaultConfig()).Analyze(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, ".mkv", sig.Container)
	assert.Equal(t, []string{
		"Container format '.MKV' may not be web-compatible",
		"Unknown codec - install ffmpeg for detection",
	}, sig.Issues)
	assert.False(t, sig.Compatible)

	prober := fakeProber{info: &ffmpeg.VideoInfo{HasVideo: true, VideoCodec: "h264", HasAudio: true, AudioCodec: "aac"}}
	sig, err = NewAnalyzer(zerolog.Nop(), prober, DefaultConfig()).Analyze(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, sig.Compatible)
}

func TestAnalyzeProbedCodecs(t *testing.T) {
	path := writeFile(t, "clip.webm", []byte("webm"))
	prober := fakeProber{info: &ffmpeg.VideoInfo{
		FormatName: "matroska,webm",
		HasVideo:   true,
		VideoCodec: "HEVC",
		Width:      1920,
		Height:     1080,
		FPS:        30,
		Duration:   12 * time.Second,
	}}

	sig, err := NewAnalyzer(zerolog.Nop(), prober, DefaultConfig()).Analyze(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "hevc", sig.VideoCodec)
	assert.Equal(t, "none", sig.AudioCodec)
	assert.False(t, sig.CodecsAssumed)
	assert.Equal(t, []string{"Video codec 'hevc' may not be web-compatible"}, sig.Issues)
	assert.False(t, sig.Compatible)
	assert.Equal(t, 1920, sig.Width)
	assert.Equal(t, 12*time.Second, sig.Duration)
}

func TestAnalyzeMP4BenefitOfDoubt(t *testing.T) {
	data := bytes.Join([][]byte{box("ftyp", 16), box("mdat", 64), box("moov", 32)}, nil)
	path := writeFile(t, "clip.mp4", data)
	prober := fakeProber{info: &ffmpeg.VideoInfo{
		FormatName: "mov,mp4,m4a,3gp,3g2,mj2",
		HasVideo:   true,
		VideoCodec: "mpeg4",
		HasAudio:   true,
		AudioCodec: "pcm_s16le",
	}}

	sig, err := NewAnalyzer(zerolog.Nop(), prober, DefaultConfig()).Analyze(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, sig.Issues, 2)
	assert.Equal(t, NotReady, sig.FastStart)
	assert.Equal(t, MoovEnd, sig.MoovPosition)
	assert.True(t, sig.Compatible)
}

func TestAnalyzeProbeFailureFallsBack(t *testing.T) {
	path := writeFile(t, "clip.ogv", []byte("ogv"))
	prober := fakeProber{err: errors.New("exit status 1")}

	sig, err := NewAnalyzer(zerolog.Nop(), prober, DefaultConfig()).Analyze(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, sig.CodecsAssumed)
	assert.Equal(t, "unknown", sig.VideoCodec)
	assert.Equal(t, []string{"Unknown codec - install ffmpeg for detection"}, sig.Issues)
	assert.False(t, sig.Compatible)
}

func TestAnalyzeLargeFile(t *testing.T) {
	path := writeFile(t, "clip.webm", make([]byte, 3*1024*1024))
	cfg := DefaultConfig()
	cfg.LargeFileMB = 2

	sig, err := NewAnalyzer(zerolog.Nop(), nil, cfg).Analyze(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Large file size (3.0MB) may cause buffering"}, sig.Issues)
	assert.InDelta(t, 3.0, sig.FileSizeMB, 1e-9)
	assert.True(t, sig.Compatible)
}

func TestFastStartString(t *testing.T) {
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "not_ready", NotReady.String())
	assert.Equal(t, "inconclusive", Inconclusive.String())
}
