package main

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/kikiluvv/clipsignal/internal/caption"
	"github.com/kikiluvv/clipsignal/internal/categorize"
	"github.com/kikiluvv/clipsignal/internal/config"
	"github.com/kikiluvv/clipsignal/internal/ffmpeg"
	"github.com/kikiluvv/clipsignal/internal/logging"
	"github.com/kikiluvv/clipsignal/internal/pipeline"
	"github.com/kikiluvv/clipsignal/internal/store"
	"github.com/kikiluvv/clipsignal/pkg/util"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type clipStore interface {
	pipeline.Store
	categorize.Store
}

// app holds the collaborators shared by the subcommands
type app struct {
	cfg      *config.Config
	db       *store.SQLite
	store    clipStore
	engine   *categorize.Engine
	pipeline *pipeline.Pipeline
	redis    *redis.Client
}

func openApp(ctx context.Context) (*app, error) {
	cfg := config.FromContext(ctx)
	a := &app{cfg: cfg}

	if err := util.EnsureDir(filepath.Dir(cfg.Store.Path)); err != nil {
		return nil, err
	}
	db, err := store.Open(cfg.Store.Path, store.Config{BusyTimeout: cfg.Store.BusyTimeout}, logging.WithComponent("store"))
	if err != nil {
		return nil, err
	}
	a.db, a.store = db, db

	if cfg.Cache.RedisURL != "" {
		client, err := store.NewRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("signal cache disabled")
		} else {
			a.redis = client
			a.store = store.NewCached(db, client, cfg.Cache.TTL, logging.WithComponent("cache"))
		}
	}

	a.engine, err = categorize.NewEngine(a.store, logging.WithComponent("categorize"), categorize.Options{
		TaxonomyPath:   cfg.Categorize.TaxonomyPath,
		UseCasesPath:   cfg.Categorize.UseCasesPath,
		MinSuitability: cfg.Categorize.MinSuitability,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.engine.RegisterHierarchy(ctx); err != nil {
		a.Close()
		return nil, err
	}

	var opts []pipeline.Option
	exec, err := ffmpeg.New(logging.WithComponent("ffmpeg"), cfg.FFmpeg.Threads)
	switch {
	case errors.Is(err, ffmpeg.ErrNotFound):
		log.Warn().Err(err).Msg("ffmpeg unavailable, clips cannot be decoded")
	case err != nil:
		a.Close()
		return nil, err
	default:
		opts = append(opts, pipeline.WithFFmpeg(exec))
	}

	if cfg.Caption.URL != "" {
		client := caption.NewHTTPClient(cfg.Caption.URL, cfg.Caption.Timeout)
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := client.HealthCheck(healthCtx); err != nil {
			log.Warn().Err(err).Str("url", cfg.Caption.URL).Msg("caption service not healthy")
		}
		cancel()
		opts = append(opts, pipeline.WithCaptioner(client))
	}

	a.pipeline, err = pipeline.New(logging.WithComponent("pipeline"), cfg, a.store, a.engine, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
