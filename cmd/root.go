package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/sheetmatch/config"
	"github.com/ridoystarlord/sheetmatch/database"
	"github.com/ridoystarlord/sheetmatch/introspect"
	"github.com/ridoystarlord/sheetmatch/loader"
	"github.com/ridoystarlord/sheetmatch/schema"
	"github.com/ridoystarlord/sheetmatch/session"
	"github.com/ridoystarlord/sheetmatch/utils"
)

var rootCmd = &cobra.Command{
	Use:   "sheetmatch",
	Short: "Map spreadsheet sheets and columns onto database tables",
	Long: `sheetmatch matches uploaded sheets to existing tables and columns to
existing fields, infers column types from sample values, and stages new
tables and fields where nothing matches.

Examples:

  sheetmatch match loans.csv --catalog catalog.yaml
  sheetmatch propose loans.csv payments.csv --out proposals
  sheetmatch validate loans.csv
  sheetmatch catalog
`,
	SilenceUsage: true,
}

var (
	configFile  string
	logLevel    string
	catalogFile string
	dbSchema    string
)

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("❌", err)
		os.Exit(1)
	}
}

// Register subcommands
func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default sheetmatch.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&catalogFile, "catalog", "", "Catalog snapshot YAML (reads the database when empty)")
	rootCmd.PersistentFlags().StringVar(&dbSchema, "db-schema", introspect.DefaultSchema, "Database schema to read the catalog from")

	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(proposeCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(catalogCmd)
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, utils.NewLogger(cfg.LogLevel, os.Stderr), nil
}

func loadCatalog(ctx context.Context, cfg *config.Config) (*schema.Catalog, error) {
	if catalogFile != "" {
		return loader.LoadCatalogFromYAML(catalogFile)
	}
	pool, err := database.GetPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrCatalogUnavailable, err)
	}
	return introspect.LoadCatalog(ctx, pool, dbSchema)
}

// runSession loads sheets and the catalog, then matches every sheet.
func runSession(ctx context.Context, cfg *config.Config, log zerolog.Logger, files []string, progress func(int)) (*session.Session, error) {
	sheets, err := loader.LoadSheets(ctx, files, loader.DefaultSampleRows)
	if err != nil {
		return nil, fmt.Errorf("loading sheets: %w", err)
	}

	catalog, err := loadCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer database.ClosePool()

	s, err := session.New(catalog, session.WithConfig(cfg), session.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if _, err := s.Load(sheets); err != nil {
		return nil, err
	}
	if err := s.MatchAll(ctx, progress); err != nil {
		return nil, fmt.Errorf("matching sheets: %w", err)
	}
	return s, nil
}
