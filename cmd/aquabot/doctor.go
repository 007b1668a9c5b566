package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"aquabot/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the installation",
		Long: `Verifies that the configuration, database, WATI credentials, and
OpenAI credentials are set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("aquabot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'aquabot init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				fmt.Printf("\n%d passed, %d failed\n", passed, 1)
				return nil
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Database opens
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			db, err := sql.Open("sqlite", cfg.Store.DBPath)
			if err == nil {
				err = db.PingContext(ctx)
				db.Close()
			}
			if err != nil {
				printFail("Database", err.Error())
				failed++
			} else {
				printPass("Database", cfg.Store.DBPath)
				passed++
			}

			// 4. Credentials present
			for _, check := range []struct {
				name  string
				value string
			}{
				{"WATI API key", cfg.Wati.APIKey},
				{"WATI API URL", cfg.Wati.APIURL},
				{"OpenAI API key", cfg.OpenAI.APIKey},
			} {
				if check.value == "" {
					printFail(check.name, "not set (check environment variables)")
					failed++
				} else {
					printPass(check.name, "set")
					passed++
				}
			}

			// 5. Alert sinks
			if cfg.Alerts.Telegram.Enabled && cfg.Alerts.Telegram.Token == "" {
				printFail("Telegram alerts", "enabled but token not set")
				failed++
			}
			if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.Token == "" {
				printFail("Slack alerts", "enabled but token not set")
				failed++
			}

			fmt.Printf("\n%d passed, %d failed\n", passed, failed)
			return nil
		},
	}
}

func printPass(name, detail string) {
	fmt.Printf("  ✓ %-20s %s\n", name, detail)
}

func printFail(name, detail string) {
	fmt.Printf("  ✗ %-20s %s\n", name, detail)
}
