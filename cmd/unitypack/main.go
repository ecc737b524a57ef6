package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jchantrell/unitypack"
	"github.com/jchantrell/unitypack/internal/config"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var (
	cfg     *config.Config
	cfgFile string

	dbPath      string
	typeFilter  string
	oodleMethod int
	logLevel    string
	logFormat   string
	noProgress  bool
)

var rootCmd = &cobra.Command{
	Use:   "unitypack <bundle>",
	Short: "Unity asset bundle reader",
	Long: `unitypack reads Unity asset bundles (UnityFS, UnityRaw and UnityWeb)
and the serialized files inside them.

Given a bundle path it prints the number of assets and, for each asset, its
name, its object count and the type of every object matching the type filter
(GameObject unless configured otherwise).`,
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if cmd.Flags().Changed("database") {
			cfg.Database = dbPath
		}
		if cmd.Flags().Changed("type") {
			cfg.TypeFilter = typeFilter
		}
		if cmd.Flags().Changed("oodle-method") {
			cfg.OodleMethod = oodleMethod
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}

		if err := cfg.Validate(); err != nil {
			return err
		}

		level, _ := config.ParseLevel(cfg.LogLevel)

		var handler slog.Handler
		if cfg.LogFormat == config.LogFormatJSON {
			handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})
		} else {
			handler = tint.NewHandler(os.Stderr, &tint.Options{
				Level: level,
			})
		}

		slog.SetDefault(slog.New(handler))

		slog.Debug("Configuration",
			"database", cfg.Database,
			"type_filter", cfg.TypeFilter,
			"oodle_method", cfg.OodleMethod,
			"log_level", cfg.LogLevel,
			"log_format", cfg.LogFormat)

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := newLibrary(cfg)
		if err != nil {
			return err
		}
		return runList(cmd.OutOrStdout(), lib, args[0], cfg.TypeFilter)
	},
}

// newLibrary builds a library with the configured codecs
func newLibrary(c *config.Config) (*unitypack.Library, error) {
	var opts []unitypack.Option
	if c.OodleMethod != 0 {
		opts = append(opts, unitypack.WithOodle(uint8(c.OodleMethod)))
	}
	return unitypack.New(opts...)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", unitypack.KindOf(err), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is unitypack.yaml in $HOME or pwd)")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "database", "d", "", "index database file path")
	rootCmd.PersistentFlags().StringVarP(&typeFilter, "type", "t", "", "root type name to list (default GameObject)")
	rootCmd.PersistentFlags().IntVar(&oodleMethod, "oodle-method", 0, "block compression id decoded as Oodle (0 disables)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress bar")
}
