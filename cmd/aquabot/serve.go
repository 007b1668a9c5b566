package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"aquabot/internal/agent"
	"aquabot/internal/bus"
	"aquabot/internal/channel"
	"aquabot/internal/domain"
	"aquabot/internal/httpapi"
	"aquabot/internal/knowledge"
	"aquabot/internal/llm"
	"aquabot/internal/metrics"
	"aquabot/internal/routing"
	"aquabot/internal/scraper"
	"aquabot/internal/store"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and routing pipeline",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.Store.DBPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

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
	matcher := knowledge.NewMatcher(knowledge.MatcherConfig{
		Engine:        engine,
		Completer:     llmClient,
		HighThreshold: cfg.Routing.HighThreshold,
		LowThreshold:  cfg.Routing.LowThreshold,
		Logger:        logger,
	})

	wati := channel.NewWati(cfg.Wati, logger)
	notifiers := channel.Notifiers(cfg.Alerts, logger)

	queryAgent := agent.NewQueryAgent(llmClient, db, logger)
	serviceAgent := agent.NewServiceRequestAgent(agent.ServiceRequestConfig{
		Completer: llmClient,
		OrdersURL: cfg.Catalog.OrdersURL,
		OrdersKey: cfg.Catalog.OrdersKey,
		Logger:    logger,
	})

	failOpen := cfg.Routing.FailOpenEnabled()
	pauses := routing.NewPauseGate(routing.PauseGateConfig{
		Store:         db,
		TTL:           cfg.Routing.PauseTTL.Std(),
		TriggerEmails: cfg.Routing.TriggerEmails,
		FailOpen:      failOpen,
		Logger:        logger,
	})
	policy := routing.NewPolicy(routing.PolicyConfig{
		Store:      db,
		Dedup:      routing.NewDeduplicator(db, failOpen, logger),
		Pauses:     pauses,
		Access:     routing.NewAccessGate(cfg.Access.Restricted, cfg.Access.AllowedPhones),
		Matcher:    matcher,
		Classifier: agent.NewClassifier(llmClient, logger),
		Inquiry: func(ctx context.Context, turn routing.TurnContext) (string, error) {
			return queryAgent.Answer(ctx, turn.Text, turn.History)
		},
		Service: func(ctx context.Context, turn routing.TurnContext) (string, error) {
			return serviceAgent.Handle(ctx, turn.User.PhoneNumber, turn.Text, turn.Language)
		},
		Sender:       wati,
		Transcriber:  llmClient,
		Notifiers:    notifiers,
		Metrics:      metrics.RoutingMetrics{},
		Logger:       logger,
		BatchWindow:  cfg.Routing.BatchWindow.Std(),
		HistoryLimit: cfg.Routing.HistoryLimit,
	})
	defer policy.Close()

	catalogSync := scraper.New(cfg.Catalog, db, logger)
	scheduler, err := scraper.NewScheduler(catalogSync, cfg.Catalog.DailyAt, logger)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Expired pauses resolve lazily on read; the sweep just keeps the table
	// from growing.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := db.SweepExpiredPauses(ctx, time.Now()); err != nil {
					logger.Warn("pause sweep failed", "error", err)
				} else if n > 0 {
					logger.Debug("expired pauses swept", "count", n)
				}
			}
		}
	}()

	messageBus := bus.New(100, logger)
	defer messageBus.Close()

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		bus.Consume(ctx, messageBus, cfg.Routing.Concurrency, func(ctx context.Context, msg domain.InboundMessage) {
			policy.Route(ctx, msg, time.Now())
		})
	}()

	server := httpapi.NewServer(httpapi.ServerConfig{
		Listen:    cfg.Server.Listen,
		Bus:       messageBus,
		Wati:      wati,
		Store:     db,
		Engine:    engine,
		Scheduler: scheduler,
		Pauses:    pauses,
		Logger:    logger,
	})

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	messageBus.Close()
	<-consumerDone
	return nil
}
