package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gitcohort/gitcohort-go/internal/cache"
	"github.com/gitcohort/gitcohort-go/internal/config"
	"github.com/gitcohort/gitcohort-go/internal/gitlab"
	"github.com/gitcohort/gitcohort-go/internal/logging"
	"github.com/gitcohort/gitcohort-go/internal/models"
	"github.com/gitcohort/gitcohort-go/internal/pipeline"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	verbose bool
	logJSON bool
	logger  *logrus.Logger
	cfg     *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gitcohort",
	Short: "GitCohort - contribution aggregation and cohort grading for GitLab users",
	Long: `GitCohort aggregates per-user contribution activity (commits, merge
requests, issues, comments) from a GitLab deployment over a date window,
and grades each user against the cohort average.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env first so the config layer sees the token.
		_ = config.LoadEnv()

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		if err := logging.Initialize(logging.Config{Level: level, JSONFormat: logJSON}); err != nil {
			return err
		}

		logger = logrus.New()
		logger.SetOutput(os.Stderr)
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			logger.WithError(err).Warn("Failed to load config, using defaults")
			cfg = config.Default()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .gitcohort/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log in JSON format")

	rootCmd.SetVersionTemplate(`GitCohort {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(batchCmd)
}

// buildStack wires the transport, cache and pipeline from config.
func buildStack(ctx context.Context) (*cache.Cache, *pipeline.Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	transport, err := gitlab.NewTransport(gitlab.TransportConfig{
		BaseURL:        cfg.GitLab.BaseURL,
		Token:          cfg.GitLab.Token,
		RateLimit:      cfg.GitLab.RateLimit,
		MaxInFlight:    cfg.Batch.MaxInFlight,
		RequestTimeout: cfg.GitLab.RequestTimeout,
	})
	if err != nil {
		return nil, nil, err
	}

	store, err := buildStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	c := cache.New(store, cache.Options{
		UserTTL:  cfg.Cache.UserTTL,
		BatchTTL: cfg.Cache.BatchTTL,
	})

	p := pipeline.New(gitlab.NewClient(transport), c, logger, pipeline.Options{
		Timeout:     cfg.Batch.PipelineTimeout,
		MaxProjects: cfg.Batch.MaxProjects,
	})
	return c, p, nil
}

func buildStore(ctx context.Context) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "redis":
		return cache.NewRedisStore(ctx, cache.RedisConfig{
			Host:     cfg.Cache.Redis.Host,
			Port:     cfg.Cache.Redis.Port,
			Password: cfg.Cache.Redis.Password,
		})
	case "bolt":
		return cache.NewBoltStore(cfg.Cache.Directory + "/gitcohort.db")
	default:
		return cache.NewMemoryStore(), nil
	}
}

// parseWindow turns --from/--to date flags into an inclusive window
// covering both whole days.
func parseWindow(from, to string) (models.Window, error) {
	start, err := time.Parse("2006-01-02", from)
	if err != nil {
		return models.Window{}, fmt.Errorf("parse --from: %w", err)
	}
	end, err := time.Parse("2006-01-02", to)
	if err != nil {
		return models.Window{}, fmt.Errorf("parse --to: %w", err)
	}
	// The end date is inclusive: extend it to the last instant of the day.
	return models.NewWindow(start.UTC(), end.UTC().Add(24*time.Hour-time.Second))
}
