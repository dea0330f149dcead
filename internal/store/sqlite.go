package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kikiluvv/clipsignal/internal/tempo"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure Go driver
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS videos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path TEXT NOT NULL UNIQUE,
	duration REAL,
	width INTEGER,
	height INTEGER,
	fps REAL,
	file_size_mb REAL,
	motion_level TEXT,
	motion_score REAL,
	flow_magnitude REAL,
	max_flow_magnitude REAL,
	motion_area REAL,
	camera_motion BOOLEAN DEFAULT 0,
	object_motion BOOLEAN DEFAULT 0,
	bpm REAL,
	tempo_category TEXT,
	beat_count INTEGER,
	rhythm_stability REAL,
	has_rhythm BOOLEAN DEFAULT 0,
	energy_level REAL,
	brightness REAL,
	container TEXT,
	video_codec TEXT,
	audio_codec TEXT,
	autoplay_compatible BOOLEAN DEFAULT 0,
	is_web_optimized BOOLEAN DEFAULT 0,
	fast_start TEXT,
	moov_position TEXT,
	compat_issues TEXT,
	category TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id INTEGER NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
	tag_type TEXT NOT NULL,
	tag_value TEXT NOT NULL,
	confidence REAL
);

CREATE TABLE IF NOT EXISTS colors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id INTEGER NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
	color_hex TEXT NOT NULL,
	color_name TEXT,
	percentage REAL
);

CREATE TABLE IF NOT EXISTS moods (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id INTEGER NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
	mood_type TEXT NOT NULL,
	intensity REAL,
	description TEXT
);

CREATE TABLE IF NOT EXISTS ai_analysis (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id INTEGER NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
	analysis_type TEXT NOT NULL,
	result_json TEXT,
	analyzed_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS key_frames (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id INTEGER NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
	frame_index INTEGER NOT NULL,
	timestamp REAL NOT NULL,
	phash TEXT,
	is_representative BOOLEAN DEFAULT 0
);

CREATE TABLE IF NOT EXISTS use_cases (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id INTEGER NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
	use_case TEXT NOT NULL,
	suitability_score REAL,
	description TEXT,
	UNIQUE(video_id, use_case)
);

CREATE TABLE IF NOT EXISTS categories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	parent_category TEXT
);

CREATE INDEX IF NOT EXISTS idx_tags_video ON tags(video_id);
CREATE INDEX IF NOT EXISTS idx_colors_video ON colors(video_id);
CREATE INDEX IF NOT EXISTS idx_moods_video ON moods(video_id);
CREATE INDEX IF NOT EXISTS idx_motion_level ON videos(motion_level);
CREATE INDEX IF NOT EXISTS idx_bpm ON videos(bpm);
CREATE INDEX IF NOT EXISTS idx_category ON videos(category);
`

// SQLite is the database-backed store
type SQLite struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open initializes the database at path and applies migrations
func Open(path string, cfg Config, logger zerolog.Logger) (*SQLite, error) {
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = DefaultConfig().BusyTimeout
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = DefaultConfig().MaxOpenConns
	}

	// pragmas in the DSN apply to every pooled connection
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}

	s := &SQLite{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migration failed: %w", err)
	}

	logger.Debug().Str("path", path).Msg("store opened")
	return s, nil
}

func (s *SQLite) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func checkAffected(res sql.Result, videoID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, videoID)
	}
	return nil
}

// AddVideo registers path and returns its id. Re-adding a path returns the
// existing id.
func (s *SQLite) AddVideo(ctx context.Context, path string) (int64, error) {
	ts := now()
	var id int64
	err := s.db.QueryRowContext(ctx, `
	INSERT INTO videos (file_path, created_at, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(file_path) DO UPDATE SET updated_at = excluded.updated_at
	RETURNING id`, path, ts, ts).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add video %s: %w", path, err)
	}
	return id, nil
}

// PersistSignals stores the analyzer outputs for videoID, replacing any
// earlier colors
func (s *SQLite) PersistSignals(ctx context.Context, videoID int64, sig SignalVector) error {
	issues, err := json.Marshal(sig.Compat.Issues)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	m, t, c := sig.Motion, sig.Tempo, sig.Compat
	res, err := tx.ExecContext(ctx, `
	UPDATE videos SET
		duration = ?, width = ?, height = ?, fps = ?, file_size_mb = ?,
		motion_level = ?, motion_score = ?, flow_magnitude = ?, max_flow_magnitude = ?,
		motion_area = ?, camera_motion = ?, object_motion = ?,
		bpm = ?, tempo_category = ?, beat_count = ?, rhythm_stability = ?, has_rhythm = ?,
		energy_level = ?, brightness = ?,
		container = ?, video_codec = ?, audio_codec = ?, autoplay_compatible = ?,
		is_web_optimized = ?, fast_start = ?, moov_position = ?, compat_issues = ?,
		updated_at = ?
	WHERE id = ?`,
		c.Duration.Seconds(), c.Width, c.Height, c.FPS, c.FileSizeMB,
		string(m.Level), m.Score, m.FlowMagnitude, m.MaxFlowMagnitude,
		m.AreaFraction, m.CameraMotion, m.ObjectMotion,
		t.BPM, string(t.Category), t.BeatCount, t.Stability, t.HasRhythm,
		t.Energy, t.Brightness,
		c.Container, c.VideoCodec, c.AudioCodec, c.Compatible,
		c.ProgressiveReady, c.FastStart.String(), c.MoovPosition, string(issues),
		now(), videoID)
	if err != nil {
		return fmt.Errorf("update signals: %w", err)
	}
	if err := checkAffected(res, videoID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM colors WHERE video_id = ?`, videoID); err != nil {
		return err
	}
	for _, col := range sig.Colors {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO colors (video_id, color_hex, color_name, percentage) VALUES (?, ?, ?, ?)`,
			videoID, col.Hex, col.Name, col.Percentage); err != nil {
			return fmt.Errorf("insert color: %w", err)
		}
	}
	return tx.Commit()
}

// GetSignals loads the categorization inputs for videoID
func (s *SQLite) GetSignals(ctx context.Context, videoID int64) (*Signals, error) {
	var (
		level    sql.NullString
		energy   sql.NullFloat64
		category sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT motion_level, energy_level, category FROM videos WHERE id = ?`, videoID).
		Scan(&level, &energy, &category)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, videoID)
	}
	if err != nil {
		return nil, err
	}

	sig := &Signals{
		VideoID:     videoID,
		MotionLevel: level.String,
		Energy:      energy.Float64,
		Category:    category.String,
	}
	if sig.Tags, err = s.strings(ctx, `SELECT tag_value FROM tags WHERE video_id = ? ORDER BY id`, videoID); err != nil {
		return nil, err
	}
	if sig.Moods, err = s.strings(ctx, `SELECT mood_type FROM moods WHERE video_id = ? ORDER BY id`, videoID); err != nil {
		return nil, err
	}
	if sig.Colors, err = s.strings(ctx, `SELECT color_name FROM colors WHERE video_id = ? ORDER BY id`, videoID); err != nil {
		return nil, err
	}
	return sig, nil
}

func (s *SQLite) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v.String)
	}
	return out, rows.Err()
}

// replace runs del then one insert per row inside a transaction
func (s *SQLite) replace(ctx context.Context, videoID int64, del, ins string, rows [][]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, del, videoID); err != nil {
		return err
	}
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, ins, append([]any{videoID}, r...)...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetTags replaces the tags of videoID
func (s *SQLite) SetTags(ctx context.Context, videoID int64, tags []Tag) error {
	rows := make([][]any, len(tags))
	for i, t := range tags {
		rows[i] = []any{t.Type, t.Value, t.Confidence}
	}
	err := s.replace(ctx, videoID,
		`DELETE FROM tags WHERE video_id = ?`,
		`INSERT INTO tags (video_id, tag_type, tag_value, confidence) VALUES (?, ?, ?, ?)`,
		rows)
	if err != nil {
		return fmt.Errorf("set tags for %d: %w", videoID, err)
	}
	return nil
}

// SetMood replaces the mood of videoID
func (s *SQLite) SetMood(ctx context.Context, videoID int64, mood Mood) error {
	var rows [][]any
	if mood.Type != "" {
		rows = append(rows, []any{mood.Type, mood.Intensity, nullString(mood.Description)})
	}
	err := s.replace(ctx, videoID,
		`DELETE FROM moods WHERE video_id = ?`,
		`INSERT INTO moods (video_id, mood_type, intensity, description) VALUES (?, ?, ?, ?)`,
		rows)
	if err != nil {
		return fmt.Errorf("set mood for %d: %w", videoID, err)
	}
	return nil
}

// SetKeyFrames replaces the key frames of videoID
func (s *SQLite) SetKeyFrames(ctx context.Context, videoID int64, frames []KeyFrame) error {
	rows := make([][]any, len(frames))
	for i, f := range frames {
		rows[i] = []any{f.FrameIndex, f.Timestamp, nullString(f.Hash), f.Representative}
	}
	err := s.replace(ctx, videoID,
		`DELETE FROM key_frames WHERE video_id = ?`,
		`INSERT INTO key_frames (video_id, frame_index, timestamp, phash, is_representative) VALUES (?, ?, ?, ?, ?)`,
		rows)
	if err != nil {
		return fmt.Errorf("set key frames for %d: %w", videoID, err)
	}
	return nil
}

// KeyFrames lists the stored key frames of videoID in frame order
func (s *SQLite) KeyFrames(ctx context.Context, videoID int64) ([]KeyFrame, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT frame_index, timestamp, phash, is_representative
	FROM key_frames WHERE video_id = ? ORDER BY frame_index`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KeyFrame
	for rows.Next() {
		var (
			f    KeyFrame
			hash sql.NullString
		)
		if err := rows.Scan(&f.FrameIndex, &f.Timestamp, &hash, &f.Representative); err != nil {
			return nil, err
		}
		f.Hash = hash.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// AddAnalysis records a raw analysis result as JSON
func (s *SQLite) AddAnalysis(ctx context.Context, videoID int64, analysisType string, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode %s analysis: %w", analysisType, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ai_analysis (video_id, analysis_type, result_json, analyzed_at) VALUES (?, ?, ?, ?)`,
		videoID, analysisType, string(data), now())
	if err != nil {
		return fmt.Errorf("add %s analysis for %d: %w", analysisType, videoID, err)
	}
	return nil
}

// RegisterCategory inserts a category once; repeated calls are no-ops
func (s *SQLite) RegisterCategory(ctx context.Context, name, parent string) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO categories (name, parent_category) VALUES (?, ?)
	ON CONFLICT(name) DO NOTHING`, name, nullString(parent))
	if err != nil {
		return fmt.Errorf("register category %s: %w", name, err)
	}
	return nil
}

// SetCategory overwrites the category path of videoID
func (s *SQLite) SetCategory(ctx context.Context, videoID int64, path string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE videos SET category = ?, updated_at = ? WHERE id = ?`, path, now(), videoID)
	if err != nil {
		return fmt.Errorf("set category for %d: %w", videoID, err)
	}
	return checkAffected(res, videoID)
}

func (s *SQLite) ClearUseCases(ctx context.Context, videoID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM use_cases WHERE video_id = ?`, videoID); err != nil {
		return fmt.Errorf("clear use cases for %d: %w", videoID, err)
	}
	return nil
}

func (s *SQLite) AddUseCase(ctx context.Context, videoID int64, name string, suitability float64, description string) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO use_cases (video_id, use_case, suitability_score, description)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(video_id, use_case) DO UPDATE SET
		suitability_score = excluded.suitability_score,
		description = excluded.description`,
		videoID, name, suitability, description)
	if err != nil {
		return fmt.Errorf("add use case %s for %d: %w", name, videoID, err)
	}
	return nil
}

// UseCases lists the stored use cases of videoID, best first
func (s *SQLite) UseCases(ctx context.Context, videoID int64) ([]UseCase, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT use_case, suitability_score, description FROM use_cases
	WHERE video_id = ? ORDER BY suitability_score DESC, use_case`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UseCase
	for rows.Next() {
		var (
			uc   UseCase
			desc sql.NullString
		)
		if err := rows.Scan(&uc.Name, &uc.Suitability, &desc); err != nil {
			return nil, err
		}
		uc.Description = desc.String
		out = append(out, uc)
	}
	return out, rows.Err()
}

// ListUncategorized returns ids of videos with no category or Uncategorized
func (s *SQLite) ListUncategorized(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM videos WHERE category IS NULL OR category = 'Uncategorized' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CategoryCounts counts videos per assigned category, largest first
func (s *SQLite) CategoryCounts(ctx context.Context) ([]CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT category, COUNT(*) AS n FROM videos
	WHERE category IS NOT NULL
	GROUP BY category
	ORDER BY n DESC, category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategoryCount
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TempoClips lists every video with a measured BPM
func (s *SQLite) TempoClips(ctx context.Context) ([]tempo.BPMClip, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_path, bpm FROM videos WHERE bpm > 0 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tempo.BPMClip
	for rows.Next() {
		var c tempo.BPMClip
		if err := rows.Scan(&c.ID, &c.Path, &c.BPM); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// VideoID looks up the id stored for path
func (s *SQLite) VideoID(ctx context.Context, path string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM videos WHERE file_path = ?`, path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return id, err
}
