// Package store persists clip signals, tags and categorization results.
package store

import (
	"errors"
	"time"

	"github.com/kikiluvv/clipsignal/internal/color"
	"github.com/kikiluvv/clipsignal/internal/compat"
	"github.com/kikiluvv/clipsignal/internal/motion"
	"github.com/kikiluvv/clipsignal/internal/tempo"
)

var ErrNotFound = errors.New("video not found")

// SignalVector is everything the analyzers measured for one clip
type SignalVector struct {
	Motion motion.Signal
	Tempo  tempo.Signal
	Colors color.Palette
	Compat compat.Signal
}

// Signals is the read model the categorization rules work from
type Signals struct {
	VideoID     int64    `json:"video_id"`
	Tags        []string `json:"tags"`
	Moods       []string `json:"moods"`
	Colors      []string `json:"colors"`
	MotionLevel string   `json:"motion_level"`
	Energy      float64  `json:"energy"`
	Category    string   `json:"category"`
}

// Tag is a typed label attached to a clip
type Tag struct {
	Type       string
	Value      string
	Confidence float64
}

type Mood struct {
	Type        string
	Intensity   float64
	Description string
}

type KeyFrame struct {
	FrameIndex     int
	Timestamp      float64
	Hash           string
	Representative bool
}

type UseCase struct {
	Name        string  `json:"use_case"`
	Suitability float64 `json:"suitability_score"`
	Description string  `json:"description"`
}

type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Config mirrors the connection settings of the sqlite pool
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 8,
	}
}
