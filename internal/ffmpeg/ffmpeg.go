package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Executor handles all ffmpeg operations with progress streaming
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
}

// New creates a new ffmpeg executor
func New(logger zerolog.Logger, threads int) (*Executor, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg: %v", ErrNotFound, err)
	}

	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe: %v", ErrNotFound, err)
	}

	return &Executor{
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     threads,
	}, nil
}

// Run executes ffmpeg with the given arguments and streams progress.
// When opts.Stdout is set it receives the raw output stream; returning
// ErrStop from it ends the process early without error.
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Args) == 0 {
		return fmt.Errorf("no arguments provided")
	}

	// Build args with threads BEFORE other arguments
	baseArgs := []string{"-y", "-hide_banner", "-nostdin", "-loglevel", "error"}

	if e.threads > 0 {
		baseArgs = append(baseArgs, "-threads", strconv.Itoa(e.threads))
	}

	baseArgs = append(baseArgs, "-progress", "pipe:2", "-nostats")
	args := append(baseArgs, opts.Args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// last log lines, attached to failures
	var tail []string
	var wg sync.WaitGroup
	wg.Add(1)

	// Stream stderr (progress + logs)
	go func() {
		defer wg.Done()
		e.streamOutput(stderr, opts.ProgressHandler, func(line string) {
			tail = append(tail, line)
			if len(tail) > 20 {
				tail = tail[1:]
			}
			if opts.LogHandler != nil {
				opts.LogHandler(line)
			}
		})
	}()

	var consumeErr error
	if opts.Stdout != nil {
		consumeErr = opts.Stdout(stdout)
		if consumeErr != nil {
			_ = cmd.Process.Kill()
		}
		_, _ = io.Copy(io.Discard, stdout)
	} else {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if opts.LogHandler != nil {
				opts.LogHandler(scanner.Text())
			}
		}
	}

	wg.Wait()
	waitErr := cmd.Wait()

	switch {
	case errors.Is(consumeErr, ErrStop):
		e.logger.Debug().Msg("ffmpeg stopped by consumer")
		return nil
	case consumeErr != nil:
		return consumeErr
	case waitErr != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg execution failed: %w: %s", waitErr, strings.Join(tail, "; "))
	}

	e.logger.Debug().Msg("ffmpeg execution completed")
	return nil
}

// progressKeys are the key=value lines emitted by -progress
var progressKeys = map[string]bool{
	"frame": true, "fps": true, "bitrate": true, "total_size": true,
	"out_time_us": true, "out_time_ms": true, "out_time": true,
	"dup_frames": true, "drop_frames": true, "speed": true, "progress": true,
}

func isProgressLine(line string) (key, value string, ok bool) {
	key, value, found := strings.Cut(line, "=")
	if !found {
		return "", "", false
	}
	if progressKeys[key] || strings.HasPrefix(key, "stream_") {
		return key, strings.TrimSpace(value), true
	}
	return "", "", false
}

// streamOutput parses ffmpeg output and calls handlers
func (e *Executor) streamOutput(r io.Reader, progressHandler func(*Progress), logHandler func(string)) {
	scanner := bufio.NewScanner(r)
	progressData := &Progress{}

	for scanner.Scan() {
		line := scanner.Text()

		key, value, ok := isProgressLine(line)
		if !ok {
			if logHandler != nil {
				logHandler(line)
			}
			continue
		}

		switch key {
		case "frame":
			progressData.Frame, _ = strconv.Atoi(value)
		case "fps":
			progressData.FPS, _ = strconv.ParseFloat(value, 64)
		case "bitrate":
			progressData.Bitrate = value
		case "out_time":
			progressData.Time = value
		case "speed":
			progressData.Speed = value
		case "progress":
			// End of progress block
			if progressHandler != nil && progressData.Frame > 0 {
				progressHandler(progressData)
			}
			progressData = &Progress{}
		}
	}
}
