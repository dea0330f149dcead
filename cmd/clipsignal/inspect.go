package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/kikiluvv/clipsignal/internal/media"
	"github.com/kikiluvv/clipsignal/internal/motion"
	"github.com/kikiluvv/clipsignal/internal/tempo"
	"github.com/kikiluvv/clipsignal/pkg/util"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	sceneThreshold float64
	heatmapOut     string
	bpmTolerance   float64
)

var scenesCmd = &cobra.Command{
	Use:   "scenes [clip]",
	Short: "List frames where the scene cuts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		clip, err := a.pipeline.Open(args[0])
		if err != nil {
			return err
		}
		cuts, err := a.pipeline.Motion().DetectSceneChanges(cmd.Context(), clip, sceneThreshold)
		if err != nil {
			return err
		}

		fps := media.FrameRate(cmd.Context(), clip)
		out := cmd.OutOrStdout()
		for _, frame := range cuts {
			fmt.Fprintf(out, "%d\t%s\n", frame, util.FormatDuration(util.FrameTimestamp(frame, fps)))
		}
		log.Info().Int("scenes", len(cuts)).Str("clip", args[0]).Msg("scene detection complete")
		return nil
	},
}

var heatmapCmd = &cobra.Command{
	Use:   "heatmap [clip]",
	Short: "Render a motion heatmap PNG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		clip, err := a.pipeline.Open(args[0])
		if err != nil {
			return err
		}
		img, err := a.pipeline.Motion().BuildHeatmap(cmd.Context(), clip)
		if err != nil {
			return err
		}
		if err := util.EnsureDir(filepath.Dir(heatmapOut)); err != nil {
			return err
		}
		if err := motion.SaveHeatmap(heatmapOut, img); err != nil {
			return err
		}
		log.Info().Str("output", heatmapOut).Msg("heatmap written")
		return nil
	},
}

var compatCmd = &cobra.Command{
	Use:   "compat [clip]",
	Short: "Check whether a clip can be streamed on the web",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		sig, err := a.pipeline.Compat().Analyze(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "container:   %s\n", sig.Container)
		fmt.Fprintf(out, "codecs:      %s / %s", sig.VideoCodec, sig.AudioCodec)
		if sig.CodecsAssumed {
			fmt.Fprint(out, " (assumed)")
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "fast start:  %s (moov %s)\n", sig.FastStart, sig.MoovPosition)
		if sig.Width > 0 {
			fmt.Fprintf(out, "resolution:  %dx%d @ %.2f fps, %s\n", sig.Width, sig.Height, sig.FPS, util.FormatDuration(sig.Duration))
		}
		fmt.Fprintf(out, "size:        %.2f MB\n", sig.FileSizeMB)
		fmt.Fprintf(out, "compatible:  %t\n", sig.Compatible)
		for _, issue := range sig.Issues {
			fmt.Fprintf(out, "  - %s\n", issue)
		}
		return nil
	},
}

var bpmCmd = &cobra.Command{
	Use:   "bpm [target]",
	Short: "Find analyzed clips whose tempo is close to a target BPM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := strconv.ParseFloat(args[0], 64)
		if err != nil || target <= 0 {
			return fmt.Errorf("invalid BPM %q", args[0])
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		clips, err := a.db.TempoClips(cmd.Context())
		if err != nil {
			return err
		}
		matches := tempo.FindClipsForBPM(target, clips, bpmTolerance)

		out := cmd.OutOrStdout()
		for _, m := range matches {
			fmt.Fprintf(out, "%.1f BPM (%+.1f)\t%s\n", m.BPM, m.BPM-target, m.Path)
		}
		log.Info().Int("matches", len(matches)).Float64("target", target).Msg("bpm search complete")
		return nil
	},
}

func init() {
	scenesCmd.Flags().Float64Var(&sceneThreshold, "threshold", 0, "mean intensity change that counts as a cut (default from config)")
	heatmapCmd.Flags().StringVarP(&heatmapOut, "output", "o", "heatmap.png", "output PNG path")
	bpmCmd.Flags().Float64Var(&bpmTolerance, "tolerance", tempo.DefaultBPMTolerance, "maximum BPM difference")
}
