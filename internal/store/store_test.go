package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kikiluvv/clipsignal/internal/color"
	"github.com/kikiluvv/clipsignal/internal/compat"
	"github.com/kikiluvv/clipsignal/internal/motion"
	"github.com/kikiluvv/clipsignal/internal/tempo"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleVector() SignalVector {
	return SignalVector{
		Motion: motion.Signal{Level: motion.LevelFast, Score: 70, FlowMagnitude: 7},
		Tempo:  tempo.Signal{BPM: 128, Category: tempo.CategoryFast, Energy: 65},
		Colors: color.Palette{
			{Hex: "#ff0000", Name: "red", Percentage: 0.6},
			{Hex: "#0000ff", Name: "blue", Percentage: 0.4},
		},
		Compat: compat.Signal{Container: ".mp4", Compatible: true, FastStart: compat.Ready, Issues: []string{}},
	}
}

func TestAddVideoIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.AddVideo(ctx, "/clips/a.mp4")
	require.NoError(t, err)
	id2, err := s.AddVideo(ctx, "/clips/a.mp4")
	require.NoError(t, err)
	id3, err := s.AddVideo(ctx, "/clips/b.mp4")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)

	got, err := s.VideoID(ctx, "/clips/b.mp4")
	require.NoError(t, err)
	assert.Equal(t, id3, got)
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	_, err = s.AddVideo(context.Background(), "/clips/a.mp4")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	_, err = s.VideoID(context.Background(), "/clips/a.mp4")
	assert.NoError(t, err)
}

func TestPersistAndGetSignals(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.AddVideo(ctx, "/clips/a.mp4")
	require.NoError(t, err)
	require.NoError(t, s.PersistSignals(ctx, id, sampleVector()))
	require.NoError(t, s.SetTags(ctx, id, []Tag{
		{Type: "theme", Value: "Forest", Confidence: 1},
		{Type: "keyword", Value: "wildlife", Confidence: 0.8},
	}))
	require.NoError(t, s.SetMood(ctx, id, Mood{Type: "positive", Intensity: 7}))

	sig, err := s.GetSignals(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Forest", "wildlife"}, sig.Tags)
	assert.Equal(t, []string{"positive"}, sig.Moods)
	assert.Equal(t, []string{"red", "blue"}, sig.Colors)
	assert.Equal(t, "fast", sig.MotionLevel)
	assert.Equal(t, 65.0, sig.Energy)
	assert.Empty(t, sig.Category)

	// a second write replaces rather than appends
	require.NoError(t, s.SetTags(ctx, id, []Tag{{Type: "theme", Value: "Ocean", Confidence: 1}}))
	require.NoError(t, s.PersistSignals(ctx, id, sampleVector()))
	sig, err = s.GetSignals(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ocean"}, sig.Tags)
	assert.Len(t, sig.Colors, 2)

	clips, err := s.TempoClips(ctx)
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Equal(t, 128.0, clips[0].BPM)
}

func TestMissingVideo(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetSignals(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.SetCategory(ctx, 42, "Nature"), ErrNotFound)
	assert.ErrorIs(t, s.PersistSignals(ctx, 42, sampleVector()), ErrNotFound)
}

func TestCategoriesAndUseCases(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, _ := s.AddVideo(ctx, "/clips/a.mp4")
	b, _ := s.AddVideo(ctx, "/clips/b.mp4")
	c, _ := s.AddVideo(ctx, "/clips/c.mp4")

	require.NoError(t, s.RegisterCategory(ctx, "Nature", ""))
	require.NoError(t, s.RegisterCategory(ctx, "Nature", ""))
	require.NoError(t, s.RegisterCategory(ctx, "Forest", "Nature"))

	require.NoError(t, s.SetCategory(ctx, a, "Nature"))
	require.NoError(t, s.SetCategory(ctx, a, "Nature > Forest"))
	require.NoError(t, s.SetCategory(ctx, b, "Nature > Forest"))
	require.NoError(t, s.SetCategory(ctx, c, "Uncategorized"))

	sig, err := s.GetSignals(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "Nature > Forest", sig.Category)

	counts, err := s.CategoryCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []CategoryCount{{"Nature > Forest", 2}, {"Uncategorized", 1}}, counts)

	d, _ := s.AddVideo(ctx, "/clips/d.mp4")
	ids, err := s.ListUncategorized(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{c, d}, ids)

	require.NoError(t, s.AddUseCase(ctx, a, "Travel/Tourism", 40, "first"))
	require.NoError(t, s.AddUseCase(ctx, a, "Nature Documentaries", 90, "x"))
	require.NoError(t, s.AddUseCase(ctx, a, "Travel/Tourism", 55, "again"))
	ucs, err := s.UseCases(ctx, a)
	require.NoError(t, err)
	require.Len(t, ucs, 2)
	assert.Equal(t, "Nature Documentaries", ucs[0].Name)
	assert.Equal(t, 55.0, ucs[1].Suitability)
	assert.Equal(t, "again", ucs[1].Description)

	require.NoError(t, s.ClearUseCases(ctx, a))
	ucs, err = s.UseCases(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, ucs)
}

func TestKeyFramesAndAnalysis(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, _ := s.AddVideo(ctx, "/clips/a.mp4")

	frames := []KeyFrame{
		{FrameIndex: 10, Timestamp: 0.4, Hash: "p:ff00", Representative: false},
		{FrameIndex: 20, Timestamp: 0.8, Hash: "p:00ff", Representative: true},
	}
	require.NoError(t, s.SetKeyFrames(ctx, id, frames))
	got, err := s.KeyFrames(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, frames, got)

	require.NoError(t, s.AddAnalysis(ctx, id, "caption", map[string]string{"theme": "forest"}))
}

func newTestCache(t *testing.T) (*miniredis.Miniredis, *Cached) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewCached(openTestStore(t), client, time.Minute, zerolog.Nop())
}

func TestCachedGetSignals(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	id, err := c.AddVideo(ctx, "/clips/a.mp4")
	require.NoError(t, err)
	require.NoError(t, c.SetCategory(ctx, id, "Nature"))

	sig, err := c.GetSignals(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Nature", sig.Category)
	assert.True(t, mr.Exists(signalsKey(id)))
	assert.Equal(t, time.Minute, mr.TTL(signalsKey(id)))

	// a write through the cache drops the entry and the next read sees it
	require.NoError(t, c.SetCategory(ctx, id, "Urban > City"))
	assert.False(t, mr.Exists(signalsKey(id)))

	sig, err = c.GetSignals(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Urban > City", sig.Category)
}

func TestCachedServesFromRedis(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(signalsKey(7), `{"video_id":7,"category":"Space"}`))
	sig, err := c.GetSignals(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Space", sig.Category)
}

func TestCachedMissingVideo(t *testing.T) {
	mr, c := newTestCache(t)
	_, err := c.GetSignals(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists(signalsKey(99)))
}
