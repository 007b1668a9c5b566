package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"aquabot/internal/scraper"
	"aquabot/internal/store"
)

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run a full catalog sync now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := store.Open(cfg.Store.DBPath, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			log, err := scraper.New(cfg.Catalog, db, logger).FullSync(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("sync %s: %d cities, %d brands, %d products\n",
				log.Status, log.Cities, log.Brands, log.Products)
			if log.Error != "" {
				fmt.Println("errors:", log.Error)
			}
			return nil
		},
	}
}
