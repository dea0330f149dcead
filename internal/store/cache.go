package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const signalsKeyPrefix = "clipsignal:signals:"

func signalsKey(videoID int64) string {
	return fmt.Sprintf("%s%d", signalsKeyPrefix, videoID)
}

// NewRedisClient connects to the server at url (redis://host:port/db)
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// Cached serves GetSignals through redis and drops the entry on every
// write that changes it. Redis failures fall through to the database.
type Cached struct {
	*SQLite
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCached(db *SQLite, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *Cached {
	return &Cached{SQLite: db, client: client, ttl: ttl, logger: logger}
}

func (c *Cached) GetSignals(ctx context.Context, videoID int64) (*Signals, error) {
	key := signalsKey(videoID)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var sig Signals
		if err := json.Unmarshal(data, &sig); err == nil {
			return &sig, nil
		}
		c.logger.Warn().Str("key", key).Msg("dropping undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Str("key", key).Msg("redis get failed")
	}

	sig, err := c.SQLite.GetSignals(ctx, videoID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(sig); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("redis set failed")
		}
	}
	return sig, nil
}

func (c *Cached) invalidate(ctx context.Context, videoID int64) {
	if err := c.client.Del(ctx, signalsKey(videoID)).Err(); err != nil {
		c.logger.Warn().Err(err).Int64("video_id", videoID).Msg("redis delete failed")
	}
}

func (c *Cached) PersistSignals(ctx context.Context, videoID int64, sig SignalVector) error {
	defer c.invalidate(ctx, videoID)
	return c.SQLite.PersistSignals(ctx, videoID, sig)
}

func (c *Cached) SetTags(ctx context.Context, videoID int64, tags []Tag) error {
	defer c.invalidate(ctx, videoID)
	return c.SQLite.SetTags(ctx, videoID, tags)
}

func (c *Cached) SetMood(ctx context.Context, videoID int64, mood Mood) error {
	defer c.invalidate(ctx, videoID)
	return c.SQLite.SetMood(ctx, videoID, mood)
}

func (c *Cached) SetCategory(ctx context.Context, videoID int64, path string) error {
	defer c.invalidate(ctx, videoID)
	return c.SQLite.SetCategory(ctx, videoID, path)
}
