// Package caption describes a representative frame through an external
// captioning service and turns the description into tags.
package caption

import (
	"context"
	"image"
	"strconv"
	"strings"
)

const DefaultMoodIntensity = 5

// Caption is the structured description of one frame
type Caption struct {
	Theme         string   `json:"theme"`
	Mood          string   `json:"mood"`
	MoodIntensity int      `json:"mood_intensity"`
	Style         string   `json:"style"`
	Energy        string   `json:"energy"`
	Colors        []string `json:"colors"`
	Keywords      []string `json:"keywords"`
	SuitableFor   string   `json:"suitable_for"`
}

// Tag is a typed label derived from a caption
type Tag struct {
	Type       string
	Value      string
	Confidence float64
}

// Provider captions a frame. Implementations must be safe for concurrent use.
type Provider interface {
	Caption(ctx context.Context, frame image.Image) (*Caption, error)
}

// Nop is the provider used when no captioning service is configured
type Nop struct{}

func (Nop) Caption(context.Context, image.Image) (*Caption, error) {
	return &Caption{MoodIntensity: DefaultMoodIntensity}, nil
}

// Tags renders the caption as tag rows. searchQuery, when set, is kept as
// its own tag.
func (c *Caption) Tags(searchQuery string) []Tag {
	var tags []Tag
	add := func(typ, value string, confidence float64) {
		if value = strings.TrimSpace(value); value != "" {
			tags = append(tags, Tag{Type: typ, Value: value, Confidence: confidence})
		}
	}

	add("theme", c.Theme, 1.0)
	add("style", c.Style, 1.0)
	add("energy", c.Energy, 1.0)
	for _, kw := range c.Keywords {
		add("keyword", kw, 0.8)
	}
	add("genre", c.SuitableFor, 0.9)
	add("search_query", searchQuery, 1.0)
	return tags
}

// Parse reads the labeled-line caption format:
//
//	THEME: nature
//	MOOD: positive (intensity: 7)
//	KEYWORDS: forest, river, mist
//
// Unknown labels and lines without a colon are ignored.
func Parse(text string) *Caption {
	c := &Caption{MoodIntensity: DefaultMoodIntensity}
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(key)) {
		case "theme":
			c.Theme = value
		case "mood":
			c.Mood, c.MoodIntensity = parseMood(value)
		case "style":
			c.Style = value
		case "energy":
			c.Energy = value
		case "colors":
			c.Colors = splitList(value)
		case "keywords":
			c.Keywords = splitList(value)
		case "suitable_for":
			c.SuitableFor = value
		}
	}
	return c
}

func parseMood(value string) (string, int) {
	if !strings.Contains(strings.ToLower(value), "(intensity:") {
		return value, DefaultMoodIntensity
	}
	mood, _, _ := strings.Cut(value, "(")
	_, rest, _ := strings.Cut(strings.ToLower(value), "intensity:")
	num, _, _ := strings.Cut(rest, ")")

	intensity, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		intensity = DefaultMoodIntensity
	}
	return strings.TrimSpace(mood), intensity
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
