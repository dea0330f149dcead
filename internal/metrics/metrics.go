// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "clipsignal"

var (
	analyzerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analyzer_duration_seconds",
			Help:      "Time spent in each analyzer per clip",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"analyzer"},
	)

	clipsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clips_processed_total",
			Help:      "Clips finished by the pipeline, by outcome",
		},
		[]string{"outcome"},
	)

	categoryAssignments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "category_assignments_total",
			Help:      "Category assignments by top-level category",
		},
		[]string{"category"},
	)

	fastStartResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fast_start_results_total",
			Help:      "MP4 box scan verdicts",
		},
		[]string{"result"},
	)
)

// ObserveAnalyzer records how long analyzer took since start
func ObserveAnalyzer(analyzer string, start time.Time) {
	analyzerDuration.WithLabelValues(analyzer).Observe(time.Since(start).Seconds())
}

// RecordClip counts a finished clip; outcome is "ok" or "failed"
func RecordClip(outcome string) {
	clipsProcessed.WithLabelValues(outcome).Inc()
}

// RecordCategory counts an assignment under its top-level category
func RecordCategory(path string) {
	top, _, _ := strings.Cut(path, " > ")
	categoryAssignments.WithLabelValues(top).Inc()
}

func RecordFastStart(result string) {
	fastStartResults.WithLabelValues(result).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
