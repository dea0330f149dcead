package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kikiluvv/clipsignal/pkg/util"
)

// Watch analyzes clip files as they appear in dir, one job per file. A file
// is picked up once it has been quiet for the configured debounce.
func (p *Pipeline) Watch(ctx context.Context, dir, searchQuery string, progress chan<- ProgressEvent) error {
	w, err := watchDir(dir)
	if err != nil {
		return err
	}
	defer w.Close()

	p.logger.Info().Str("dir", dir).Msg("watching for new clips")
	return p.watchLoop(ctx, w, searchQuery, progress)
}

func watchDir(dir string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return w, nil
}

func (p *Pipeline) watchLoop(ctx context.Context, w *fsnotify.Watcher, searchQuery string, progress chan<- ProgressEvent) error {
	debounce := p.cfg.Pipeline.WatchDebounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	ticker := time.NewTicker(max(debounce/4, 10*time.Millisecond))
	defer ticker.Stop()

	// path -> time of the last write seen
	pending := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if util.IsVideoFile(ev.Name) {
				pending[ev.Name] = time.Now()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn().Err(err).Msg("watcher error")

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < debounce {
					continue
				}
				delete(pending, path)

				job := NewJob([]string{path}, searchQuery)
				job.Progress = progress
				if _, err := p.Run(ctx, job); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					p.logger.Error().Err(err).Str("clip", path).Msg("watch job failed")
				}
			}
		}
	}
}
