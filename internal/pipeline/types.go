package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kikiluvv/clipsignal/internal/caption"
	"github.com/kikiluvv/clipsignal/internal/categorize"
	"github.com/kikiluvv/clipsignal/internal/store"
)

// Stage names reported on the progress channel
const (
	StageStarted = "started"
	StageDone    = "done"
	StageFailed  = "failed"
)

// Job is one batch of clips. Paths may name files or directories.
type Job struct {
	ID          uuid.UUID
	Paths       []string
	SearchQuery string
	// Progress receives one event per stage transition. May be nil.
	Progress chan<- ProgressEvent
}

func NewJob(paths []string, searchQuery string) Job {
	return Job{ID: uuid.New(), Paths: paths, SearchQuery: searchQuery}
}

type ProgressEvent struct {
	JobID   uuid.UUID
	Stage   string
	Path    string
	Done    int
	Total   int
	Message string
	Err     error
}

// Result is everything produced for one clip
type Result struct {
	VideoID    int64                 `json:"video_id"`
	Path       string                `json:"path"`
	Signals    store.SignalVector    `json:"signals"`
	Caption    *caption.Caption      `json:"caption,omitempty"`
	KeyFrames  []store.KeyFrame      `json:"key_frames"`
	Assignment categorize.Assignment `json:"assignment"`
	Elapsed    time.Duration         `json:"elapsed"`
}

type Summary struct {
	JobID     uuid.UUID
	Total     int
	Succeeded int
	Failed    int
	Results   []Result
	Failures  map[string]error
}

// Store is the persistence the pipeline writes analysis results to
type Store interface {
	AddVideo(ctx context.Context, path string) (int64, error)
	PersistSignals(ctx context.Context, videoID int64, sig store.SignalVector) error
	SetTags(ctx context.Context, videoID int64, tags []store.Tag) error
	SetMood(ctx context.Context, videoID int64, mood store.Mood) error
	SetKeyFrames(ctx context.Context, videoID int64, frames []store.KeyFrame) error
	AddAnalysis(ctx context.Context, videoID int64, analysisType string, result any) error
}

// Categorizer assigns a category and use cases to a persisted clip
type Categorizer interface {
	Categorize(ctx context.Context, videoID int64) (categorize.Assignment, error)
}
