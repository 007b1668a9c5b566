package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"aquabot/internal/knowledge"
	"aquabot/internal/llm"
	"aquabot/internal/store"
)

func knowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage the Q&A knowledge base",
	}
	cmd.AddCommand(knowledgeImportCmd())
	cmd.AddCommand(knowledgeExportCmd())
	cmd.AddCommand(knowledgeSeedCmd())
	return cmd
}

func openEngine() (*knowledge.Engine, *store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := store.Open(cfg.Store.DBPath, logger)
	if err != nil {
		return nil, nil, err
	}
	llmClient := llm.NewClient(llm.ClientConfig{
		APIKey:         cfg.OpenAI.APIKey,
		ChatModel:      cfg.OpenAI.ChatModel,
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		RatePerMinute:  cfg.OpenAI.RatePerMinute,
		Logger:         logger,
	})
	engine := knowledge.NewEngine(knowledge.EngineConfig{
		Store:              db,
		Embedder:           llmClient,
		SearchK:            cfg.Knowledge.SearchK,
		DuplicateThreshold: cfg.Knowledge.DuplicateThreshold,
		Logger:             logger,
	})
	return engine, db, nil
}

func knowledgeImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import Q&A pairs from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, db, err := openEngine()
			if err != nil {
				return err
			}
			defer db.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			added, skipped, err := engine.ImportCSV(context.Background(), f, "csv:"+args[0])
			if err != nil {
				return err
			}
			fmt.Printf("imported %d entries, skipped %d\n", added, skipped)
			return nil
		},
	}
}

func knowledgeExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file.csv>",
		Short: "Export the knowledge base to a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, db, err := openEngine()
			if err != nil {
				return err
			}
			defer db.Close()

			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			n, err := engine.ExportCSV(context.Background(), f)
			if err != nil {
				return err
			}
			fmt.Printf("exported %d entries to %s\n", n, args[0])
			return nil
		},
	}
}

func knowledgeSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the starter Q&A entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, db, err := openEngine()
			if err != nil {
				return err
			}
			defer db.Close()

			added, skipped, err := engine.Seed(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("seeded %d entries, skipped %d duplicates\n", added, skipped)
			return nil
		},
	}
}
