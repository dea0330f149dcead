package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/kikiluvv/clipsignal/internal/pipeline"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var searchQuery string

var analyzeCmd = &cobra.Command{
	Use:   "analyze [clip]",
	Short: "Analyze one clip and store its signals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.pipeline.AnalyzeClip(cmd.Context(), args[0], searchQuery)
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), res)
		return nil
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch [clips or directories...]",
	Short: "Analyze many clips concurrently",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		progress := make(chan pipeline.ProgressEvent)
		job := pipeline.NewJob(args, searchQuery)
		job.Progress = progress

		done := make(chan struct{})
		go func() {
			defer close(done)
			logProgress(progress)
		}()

		sum, err := a.pipeline.Run(cmd.Context(), job)
		close(progress)
		<-done

		out := cmd.OutOrStdout()
		for _, res := range sum.Results {
			printResult(out, res)
		}
		for path, ferr := range sum.Failures {
			fmt.Fprintf(out, "FAILED %s: %v\n", path, ferr)
		}
		fmt.Fprintf(out, "job %s: %d/%d succeeded, %d failed\n", sum.JobID, sum.Succeeded, sum.Total, sum.Failed)
		return err
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Analyze clips as they are added to a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		progress := make(chan pipeline.ProgressEvent)
		done := make(chan struct{})
		go func() {
			defer close(done)
			logProgress(progress)
		}()

		err = a.pipeline.Watch(cmd.Context(), args[0], searchQuery, progress)
		close(progress)
		<-done
		return err
	},
}

func init() {
	for _, cmd := range []*cobra.Command{analyzeCmd, batchCmd, watchCmd} {
		cmd.Flags().StringVarP(&searchQuery, "query", "q", "", "search query the clips were found with, stored as a tag")
	}
}

func logProgress(events <-chan pipeline.ProgressEvent) {
	for ev := range events {
		entry := log.Info()
		if ev.Stage == pipeline.StageFailed {
			entry = log.Error().Err(ev.Err)
		}
		entry.
			Str("job", ev.JobID.String()).
			Str("stage", ev.Stage).
			Str("clip", ev.Path).
			Int("done", ev.Done).
			Int("total", ev.Total).
			Msg(ev.Message)
	}
}

func printResult(w io.Writer, res pipeline.Result) {
	sig := res.Signals
	fmt.Fprintf(w, "%s (id %d)\n", res.Path, res.VideoID)
	fmt.Fprintf(w, "  motion:   %s (score %.1f, flow %.2f)\n", sig.Motion.Level, sig.Motion.Score, sig.Motion.FlowMagnitude)
	fmt.Fprintf(w, "  tempo:    %.1f BPM %s (confidence %.2f)\n", sig.Tempo.BPM, sig.Tempo.Category, sig.Tempo.Confidence)

	colors := make([]string, len(sig.Colors))
	for i, c := range sig.Colors {
		colors[i] = fmt.Sprintf("%s %s %.0f%%", c.Name, c.Hex, c.Percentage*100)
	}
	fmt.Fprintf(w, "  colors:   %s\n", strings.Join(colors, ", "))
	fmt.Fprintf(w, "  web:      compatible=%t fast_start=%s\n", sig.Compat.Compatible, sig.Compat.FastStart)
	for _, issue := range sig.Compat.Issues {
		fmt.Fprintf(w, "            - %s\n", issue)
	}
	fmt.Fprintf(w, "  category: %s\n", res.Assignment.CategoryPath)
	for _, uc := range res.Assignment.UseCases {
		fmt.Fprintf(w, "            %s (%.1f%%)\n", uc.Name, uc.Suitability)
	}
}
