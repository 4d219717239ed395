// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/iconfetch/internal/config"
	"github.com/xkilldash9x/iconfetch/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// envPrefix is the prefix for environment overrides, e.g. ICONFETCH_FETCH_OUTPUT_DIR.
const envPrefix = "ICONFETCH"

// appFs is the filesystem commands read and write. Tests may swap it.
var appFs = afero.NewOsFs()

// NewRootCommand builds a fresh command tree with its own viper instance, so
// repeated executions (and tests) never share flag or config state.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "iconfetch",
		Short:         "iconfetch downloads wiki icon images in bulk.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.SetDefaults(v)
			if err := initializeConfig(v, cfgFile); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.NewDefaultConfig().Logger)
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting iconfetch", zap.String("version", Version))

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, configKey, cfg))
			return nil
		},
	}

	defaults := config.NewDefaultConfig()
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./iconfetch.yaml)")
	pf.String("log-level", defaults.Logger.Level, "log level (debug, info, warn, error)")
	pf.String("log-format", defaults.Logger.Format, "log format (console or json)")
	pf.String("base-url", defaults.Fetch.BaseURL, "base URL the icon file names are appended to")
	pf.String("pattern", defaults.Fetch.FilePattern, "file name pattern; {name} is replaced by the icon name")
	pf.String("names-file", "", "file with one icon name per line")

	bindFlags(v, pf, map[string]string{
		"logger.level":       "log-level",
		"logger.format":      "log-format",
		"fetch.base_url":     "base-url",
		"fetch.file_pattern": "pattern",
		"fetch.names_file":   "names-file",
	})

	rootCmd.AddCommand(newFetchCmd(v))
	rootCmd.AddCommand(newListCmd())
	return rootCmd
}

// Execute runs the command tree and logs any failure.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}

// initializeConfig reads the config file, if any, and environment overrides.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("iconfetch")
		v.SetConfigType("yaml")
	}

	if err := config.BindEnv(v, envPrefix); err != nil {
		return err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults, env and flags apply.
	}
	return nil
}

// bindFlags maps viper keys onto flags so command-line values take precedence
// over the config file and environment.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		flag := flags.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("flag %q is not defined", name))
		}
		if err := v.BindPFlag(key, flag); err != nil {
			panic(fmt.Sprintf("bind flag %q: %v", name, err))
		}
	}
}

// configFromContext returns the configuration loaded by the root command.
func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not initialized")
	}
	return cfg, nil
}
