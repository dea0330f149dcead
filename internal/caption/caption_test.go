package caption

import (
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `THEME: nature
MOOD: positive (intensity: 7)
STYLE: cinematic
ENERGY: calm
COLORS: green, brown,  gold
KEYWORDS: forest, mist, morning light,
SUITABLE_FOR: ambient, lo-fi
this line has no label`

func TestParse(t *testing.T) {
	want := &Caption{
		Theme:         "nature",
		Mood:          "positive",
		MoodIntensity: 7,
		Style:         "cinematic",
		Energy:        "calm",
		Colors:        []string{"green", "brown", "gold"},
		Keywords:      []string{"forest", "mist", "morning light"},
		SuitableFor:   "ambient, lo-fi",
	}
	if diff := cmp.Diff(want, Parse(sample)); diff != "" {
		t.Errorf("unexpected caption (-want +got):\n%s", diff)
	}
}

func TestParseMoodIntensity(t *testing.T) {
	cases := []struct {
		line      string
		mood      string
		intensity int
	}{
		{"MOOD: neutral", "neutral", 5},
		{"mood: negative (Intensity: 3)", "negative", 3},
		{"MOOD: negative (intensity: high)", "negative", 5},
		{"MOOD: positive (intensity: 10)", "positive", 10},
	}
	for _, tc := range cases {
		c := Parse(tc.line)
		assert.Equal(t, tc.mood, c.Mood, tc.line)
		assert.Equal(t, tc.intensity, c.MoodIntensity, tc.line)
	}
}

func TestTags(t *testing.T) {
	c := Parse(sample)
	want := []Tag{
		{Type: "theme", Value: "nature", Confidence: 1},
		{Type: "style", Value: "cinematic", Confidence: 1},
		{Type: "energy", Value: "calm", Confidence: 1},
		{Type: "keyword", Value: "forest", Confidence: 0.8},
		{Type: "keyword", Value: "mist", Confidence: 0.8},
		{Type: "keyword", Value: "morning light", Confidence: 0.8},
		{Type: "genre", Value: "ambient, lo-fi", Confidence: 0.9},
		{Type: "search_query", Value: "forest walk", Confidence: 1},
	}
	assert.Equal(t, want, c.Tags("forest walk"))

	empty := &Caption{}
	assert.Empty(t, empty.Tags(""))
	assert.Equal(t, []Tag{{Type: "search_query", Value: "q", Confidence: 1}}, empty.Tags("q"))
}

func TestNop(t *testing.T) {
	c, err := Nop{}.Caption(context.Background(), image.NewGray(image.Rect(0, 0, 1, 1)))
	require.NoError(t, err)
	assert.Equal(t, 5, c.MoodIntensity)
	assert.Empty(t, c.Tags(""))
}

func newSidecar(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *HTTPClient {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/caption", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, 5*time.Second)
}

func TestHTTPClientStructured(t *testing.T) {
	client := newSidecar(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
		img, err := jpeg.Decode(r.Body)
		if assert.NoError(t, err) {
			assert.Equal(t, 16, img.Bounds().Dx())
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"theme":    "urban",
			"mood":     "neutral",
			"keywords": []string{"city", "night"},
		})
	})

	require.NoError(t, client.HealthCheck(context.Background()))
	c, err := client.Caption(context.Background(), image.NewRGBA(image.Rect(0, 0, 16, 16)))
	require.NoError(t, err)
	assert.Equal(t, "urban", c.Theme)
	assert.Equal(t, []string{"city", "night"}, c.Keywords)
	assert.Equal(t, DefaultMoodIntensity, c.MoodIntensity)
}

func TestHTTPClientText(t *testing.T) {
	client := newSidecar(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"text": sample})
	})

	c, err := client.Caption(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	require.NoError(t, err)
	assert.Equal(t, "nature", c.Theme)
	assert.Equal(t, 7, c.MoodIntensity)
}

func TestHTTPClientError(t *testing.T) {
	client := newSidecar(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	})

	_, err := client.Caption(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
