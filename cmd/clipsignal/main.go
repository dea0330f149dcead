package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kikiluvv/clipsignal/internal/config"
	"github.com/kikiluvv/clipsignal/internal/logging"
	"github.com/kikiluvv/clipsignal/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	verbose     bool
	logFormat   string
	dbPath      string
	redisURL    string
	metricsAddr string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "clipsignal",
	Short: "clipsignal - content signals for short video clips",
	Long:  "Extracts motion, tempo, color and web-compatibility signals from video clips and sorts them into categories and use cases.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose, logFormat)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Store.Path = dbPath
		}
		if redisURL != "" {
			cfg.Cache.RedisURL = redisURL
		}
		if metricsAddr != "" {
			cfg.Metrics.Addr = metricsAddr
		}

		if cfg.Metrics.Addr != "" {
			go func() {
				if err := metrics.Serve(cmd.Context(), cfg.Metrics.Addr, logging.WithComponent("metrics")); err != nil {
					log.Error().Err(err).Msg("metrics endpoint stopped")
				}
			}()
		}

		cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
		return nil
	},
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&logFormat, "log-format", logging.FormatConsole, "log format: console or json")
	flags.StringVar(&dbPath, "db", "", "sqlite database path (overrides store.path)")
	flags.StringVar(&redisURL, "redis", "", "redis URL for the signal cache (overrides cache.redis_url)")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "expose prometheus metrics on this address")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(scenesCmd)
	rootCmd.AddCommand(heatmapCmd)
	rootCmd.AddCommand(compatCmd)
	rootCmd.AddCommand(categorizeCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(bpmCmd)
	rootCmd.AddCommand(configCmd)
}
