package main

import (
	"log"
	"time"

	"github.com/formeye/internal/api"
	"github.com/formeye/internal/config"
	"github.com/formeye/internal/database"
	"github.com/formeye/internal/delivery"
	"github.com/formeye/internal/history"
	"github.com/formeye/internal/messenger"
	"github.com/formeye/internal/report"
	"github.com/formeye/internal/rule"
	"github.com/formeye/internal/submission"
	"github.com/formeye/internal/trigger"
)

func main() {
	// Initialize configuration
	cfg := config.LoadConfig()

	// Initialize database
	if err := database.Initialize(cfg.Database.Path); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	db := database.GetDB()

	rules := rule.NewStore(db)
	subs := submission.NewStore(db)
	ledger := history.NewLedger(db)

	sender, err := messenger.New(messenger.Config{Provider: cfg.Messenger.Provider})
	if err != nil {
		log.Fatalf("Failed to create messenger: %v", err)
	}

	coordinator := delivery.NewCoordinator(delivery.Config{
		DefaultBotToken: cfg.Messenger.BotToken,
		DefaultChatID:   cfg.Messenger.ChatID,
		SendTimeout:     time.Duration(cfg.Delivery.TimeoutSeconds) * time.Second,
		MaxRetries:      cfg.Delivery.MaxRetries,
		RetryDelay:      time.Duration(cfg.Delivery.RetryDelaySeconds) * time.Second,
	}, rules, ledger, sender)

	// Event trigger path
	dispatcher := trigger.NewDispatcher(rules, coordinator, cfg.Events.Shards, cfg.Events.QueueSize)
	dispatcher.Start()
	defer dispatcher.Stop()

	// Scheduled trigger path
	scheduler := trigger.NewScheduler(rules, subs, coordinator,
		time.Duration(cfg.Scheduler.ResolutionSeconds)*time.Second, cfg.Scheduler.Workers)
	scheduler.Start()
	defer scheduler.Stop()

	// Optional daily delivery digest
	if cfg.Report.Enabled {
		generator, err := report.NewGenerator(ledger, report.Config{
			SMTPHost: cfg.Report.SMTPHost,
			SMTPPort: cfg.Report.SMTPPort,
			From:     cfg.Report.From,
			Password: cfg.Report.Password,
			To:       cfg.Report.To,
		})
		if err != nil {
			log.Fatalf("Failed to create report generator: %v", err)
		}
		reportStop := make(chan struct{})
		defer close(reportStop)
		go generator.Run(24*time.Hour, reportStop)
	}

	// Initialize and start API server
	server := api.NewServer(rules, subs, ledger, dispatcher)
	if err := server.Start(cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
