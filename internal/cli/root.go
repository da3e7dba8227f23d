package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/nodule-extract/internal/cache"
	"github.com/mvp-joe/nodule-extract/internal/config"
	"github.com/mvp-joe/nodule-extract/internal/logging"
)

var (
	rootDir   string
	verbose   bool
	logFormat string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nodules",
	Short: "Nodules - lung nodule region extraction",
	Long: `Nodules reconciles LIDC-style annotation documents, patient diagnoses and
DICOM image trees into one record per nodule, and writes a masked
region-of-interest image for every annotated slice.

Configuration is read from .nodules/config.yml in the project directory,
then from a .env file and NODULES_* environment variables.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "project directory holding .nodules/config.yml (default is the working directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: auto, console or json")
}

// projectDir returns the directory configuration is loaded from.
func projectDir() (string, error) {
	if rootDir != "" {
		return rootDir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return wd, nil
}

// loadConfig loads the project configuration.
func loadConfig() (*config.Config, string, error) {
	dir, err := projectDir()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadConfigFromDir(dir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, dir, nil
}

// newLogger builds the logger from configuration and global flags.
func newLogger(cfg *config.Config) zerolog.Logger {
	lc := cfg.ToLoggingConfig()
	if verbose {
		lc.Level = "debug"
	}
	if logFormat != "" {
		lc.Format = logFormat
	}
	return logging.New(lc)
}

// openStore opens the stage cache, or a no-op store when caching is off.
// The returned close function is never nil.
func openStore(cfg *config.Config, disabled bool) (cache.Store, *cache.DB, func(), error) {
	if disabled || !cfg.Cache.Enabled {
		return cache.Nop{}, nil, func() {}, nil
	}
	db, err := cache.NewCache(cfg.Cache.Location).OpenDatabase()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return db, db, func() { db.Close() }, nil
}
