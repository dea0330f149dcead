package main

import (
	"fmt"
	"strconv"

	"github.com/kikiluvv/clipsignal/internal/categorize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var categorizeAll bool

var categorizeCmd = &cobra.Command{
	Use:   "categorize [video ids...]",
	Short: "Assign categories and use cases to analyzed clips",
	Long:  "Categorizes the given video ids, or with --all every clip that has no category yet.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !categorizeAll && len(args) == 0 {
			return fmt.Errorf("pass video ids or --all")
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		var assignments []categorize.Assignment
		if categorizeAll {
			assignments, err = a.engine.CategorizeUncategorized(cmd.Context())
			if err != nil {
				return err
			}
		}
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid video id %q", arg)
			}
			as, err := a.engine.Categorize(cmd.Context(), id)
			if err != nil {
				return err
			}
			assignments = append(assignments, as)
		}

		out := cmd.OutOrStdout()
		for _, as := range assignments {
			fmt.Fprintf(out, "%d\t%s\n", as.VideoID, as.CategoryPath)
			for _, uc := range as.UseCases {
				fmt.Fprintf(out, "\t  %s (%.1f%%)\n", uc.Name, uc.Suitability)
			}
		}
		log.Info().Int("clips", len(assignments)).Msg("categorization complete")
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many clips are in each category",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		counts, err := a.engine.CategoryStats(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, c := range counts {
			fmt.Fprintf(out, "%6d  %s\n", c.Count, c.Category)
		}
		return nil
	},
}

func init() {
	categorizeCmd.Flags().BoolVar(&categorizeAll, "all", false, "categorize every clip without a category")
}
