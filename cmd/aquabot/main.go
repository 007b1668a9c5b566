package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"aquabot/internal/config"
)

var (
	version    = "1.0.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// Secrets come from the environment; a local .env is a convenience for
	// development and its absence is not an error.
	_ = godotenv.Load()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "aquabot",
		Short:   "WhatsApp customer-support bot for water delivery",
		Long:    "aquabot answers customer WhatsApp messages for a water delivery service:\nknowledge-base answers, catalog inquiries, complaint intake, and order requests.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.aquabot/config.yaml)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(syncCmd())
	root.AddCommand(knowledgeCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				logger.Warn("config already exists, not overwriting", "path", cfgPath)
				return nil
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("config written", "path", cfgPath)
			return nil
		},
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
		cfg.ExpandSecrets()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	applyLogLevel(cfg.Log.Level)
	return cfg, nil
}

func applyLogLevel(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
