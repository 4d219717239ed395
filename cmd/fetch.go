// -- cmd/fetch.go --
package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/iconfetch/internal/config"
	"github.com/xkilldash9x/iconfetch/internal/fetcher"
	"github.com/xkilldash9x/iconfetch/internal/manifest"
	"github.com/xkilldash9x/iconfetch/internal/network"
	"github.com/xkilldash9x/iconfetch/internal/observability"
)

// ErrIncomplete is returned in strict mode when at least one icon failed.
var ErrIncomplete = errors.New("one or more icons failed to download")

func newFetchCmd(v *viper.Viper) *cobra.Command {
	fetchCmd := &cobra.Command{
		Use:   "fetch [names...]",
		Short: "Download icon images into the output directory",
		Long: `Downloads one image per icon name. Names come from the arguments,
the --names-file, the config file, or the built-in skill list, in that order.
A failed icon is reported and the run continues with the rest.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runFetch(cmd, cfg, args)
		},
	}

	defaults := config.NewDefaultConfig()
	f := fetchCmd.Flags()
	f.StringP("output", "o", defaults.Fetch.OutputDir, "directory to save icons into")
	f.IntP("concurrency", "j", defaults.Fetch.Concurrency, "number of parallel downloads")
	f.Float64("rate", defaults.Fetch.RateLimit, "maximum requests per second (0 for unlimited)")
	f.Bool("overwrite", defaults.Fetch.Overwrite, "replace icons that already exist on disk")
	f.Bool("validate-png", defaults.Fetch.ValidatePNG, "reject responses that are not PNG images")
	f.String("manifest", "", "write a JSON run manifest to this path")
	f.Bool("strict", false, "exit non-zero if any icon fails")
	f.String("user-agent", defaults.Network.UserAgent, "User-Agent header for requests")
	f.Duration("timeout", defaults.Network.Timeout, "time limit for each icon, covering all retries and backoff")
	f.Int("retries", defaults.Network.Retry.MaxRetries, "retries for transient failures")

	bindFlags(v, f, map[string]string{
		"fetch.output_dir":          "output",
		"fetch.concurrency":         "concurrency",
		"fetch.rate_limit":          "rate",
		"fetch.overwrite":           "overwrite",
		"fetch.validate_png":        "validate-png",
		"fetch.manifest":            "manifest",
		"fetch.strict":              "strict",
		"network.user_agent":        "user-agent",
		"network.timeout":           "timeout",
		"network.retry.max_retries": "retries",
	})

	return fetchCmd
}

func runFetch(cmd *cobra.Command, cfg *config.Config, args []string) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	icons, err := resolveTargets(cfg, args)
	if err != nil {
		return err
	}

	outputDir, err := homedir.Expand(cfg.Fetch.OutputDir)
	if err != nil {
		return fmt.Errorf("expand output directory: %w", err)
	}

	clientCfg, err := network.NewClientConfigFromSettings(cfg.Network)
	if err != nil {
		return err
	}
	limiter := fetcher.NewLimiter(cfg.Fetch.RateLimit)
	clientCfg.RetryPolicy.Limiter = limiter
	client := network.NewClient(clientCfg)
	defer client.CloseIdleConnections()

	f := fetcher.New(client, appFs, fetcher.Config{
		OutputDir:   outputDir,
		Concurrency: cfg.Fetch.Concurrency,
		Limiter:     limiter,
		Overwrite:   cfg.Fetch.Overwrite,
		ValidatePNG: cfg.Fetch.ValidatePNG,
		MaxBytes:    cfg.Fetch.MaxBytes,
	}, logger)

	logger.Debug("Resolved icons", zap.Int("count", len(icons)), zap.String("base_url", cfg.Fetch.BaseURL))

	report, runErr := f.Run(ctx, icons)
	if report == nil {
		return runErr
	}

	printReport(cmd.OutOrStdout(), report)

	if cfg.Fetch.Manifest != "" {
		path, err := homedir.Expand(cfg.Fetch.Manifest)
		if err != nil {
			return fmt.Errorf("expand manifest path: %w", err)
		}
		m := manifest.FromReport(report, cfg.Fetch.BaseURL, outputDir)
		if err := manifest.Write(appFs, path, m); err != nil {
			return err
		}
		logger.Info("Manifest written", zap.String("path", path), zap.String("run_id", m.RunID))
	}

	if runErr != nil {
		return runErr
	}
	if cfg.Fetch.Strict && report.Summary().Failed > 0 {
		return ErrIncomplete
	}
	return nil
}

func printReport(w io.Writer, report *fetcher.Report) {
	s := report.Summary()
	fmt.Fprintf(w, "Fetched %d icons: %d downloaded, %d skipped, %d failed (%d bytes) in %s\n",
		s.Total, s.Downloaded, s.Skipped, s.Failed, s.Bytes,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	for _, res := range report.Failures() {
		fmt.Fprintf(w, "  failed %s (%s): %v\n", res.Icon.Name, res.Icon.FileName, res.Err)
	}
}
