package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrameRate(t *testing.T) {
	assert.InDelta(t, 30.0, ParseFrameRate("30/1"), 1e-9)
	assert.InDelta(t, 29.97, ParseFrameRate("30000/1001"), 1e-3)
	assert.Zero(t, ParseFrameRate("0/0"))
	assert.Zero(t, ParseFrameRate("garbage"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:01:05.500", FormatDuration(65*time.Second+500*time.Millisecond))
	assert.Equal(t, "01:00:00.000", FormatDuration(time.Hour))
}

func TestFrameTimestamp(t *testing.T) {
	assert.Equal(t, 2*time.Second, FrameTimestamp(50, 25))
	assert.Zero(t, FrameTimestamp(10, 0))
}

func TestIsVideoFile(t *testing.T) {
	assert.True(t, IsVideoFile("clip.MP4"))
	assert.True(t, IsVideoFile("/a/b/clip.webm"))
	assert.False(t, IsVideoFile("notes.txt"))
	assert.Equal(t, ".mkv", GetExtension("X.MKV"))
}

func TestListVideos(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.mp4", "a.mov", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.mp4"), 0755))

	paths, err := ListVideos(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.mov"), filepath.Join(dir, "b.mp4")}, paths)
}
