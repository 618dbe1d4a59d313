package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vmkteam/embedlog"
	"golang.org/x/sync/errgroup"

	"expense-bot/internal/ai"
	"expense-bot/internal/api"
	"expense-bot/internal/bot"
	"expense-bot/internal/config"
	"expense-bot/internal/cryptox"
	"expense-bot/internal/pending"
	"expense-bot/internal/receipt"
	"expense-bot/internal/repository"
	"expense-bot/internal/service"
	"expense-bot/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	sl := embedlog.NewLogger(cfg.Verbose, cfg.JSONLogs)

	if err := run(ctx, cfg, sl); err != nil {
		sl.Error(ctx, "expense bot stopped with error", "err", err)
		os.Exit(1)
	}
	sl.Print(ctx, "shutdown complete")
}

func run(ctx context.Context, cfg config.Config, sl embedlog.Logger) error {
	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	cipher, err := cryptox.NewFromBase64(cfg.EncryptionKey)
	if err != nil {
		return err
	}

	store, closeStore, err := newPendingStore(cfg.PendingStorePath)
	if err != nil {
		return err
	}
	defer closeStore()

	archive, err := newArchive(ctx, cfg.S3)
	if err != nil {
		return err
	}

	userRepo := repository.NewUserRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	expenseRepo := repository.NewExpenseRepository(db)

	extractor := newExtractor(cfg.AI)
	expenseSvc := service.NewExpenseService(expenseRepo, categoryRepo, cipher, cfg.DefaultCurrency)
	userSvc := service.NewUserService(userRepo, categoryRepo, cfg.DefaultUserID)
	intakeSvc := service.NewIntakeService(sl, extractor, receipt.NewPortal(), categoryRepo, archive)
	categorySvc := service.NewCategoryService(categoryRepo, expenseRepo, cipher, extractor)

	g, ctx := errgroup.WithContext(ctx)

	var updates api.UpdateHandler
	if cfg.TelegramToken != "" {
		tg, err := bot.NewAPI(cfg.TelegramToken, cfg.TelegramDebug)
		if err != nil {
			return err
		}
		b := bot.New(tg, sl, cfg, bot.Services{
			Users:      userSvc,
			Intake:     intakeSvc,
			Expenses:   expenseSvc,
			Categories: categorySvc,
			Stats:      service.NewStatsService(expenseSvc, cfg.DefaultCurrency),
		}, store)
		updates = b

		g.Go(func() error { return b.Start(ctx) })

		if cfg.ReportInterval > 0 || cfg.ReportTime != "" {
			scheduler := service.NewSchedulerService(time.Local)
			if _, err := scheduler.ScheduleReports(cfg.ReportInterval, cfg.ReportTime, func() {
				jobCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
				if err := b.SendReports(jobCtx); err != nil {
					sl.Error(jobCtx, "failed to send reports", "err", err)
				}
			}); err != nil {
				return err
			}
			g.Go(func() error { return scheduler.Run(ctx) })
		}
	} else {
		sl.Print(ctx, "telegram token is empty, running API only")
	}

	srv := api.New(sl, db, api.Services{
		Users:      userSvc,
		Intake:     intakeSvc,
		Expenses:   expenseSvc,
		Categories: categorySvc,
	}, store, updates)
	g.Go(func() error { return srv.Run(ctx, cfg.HTTPAddr) })

	sl.Print(ctx, "expense bot started", "addr", cfg.HTTPAddr, "provider", cfg.AI.Provider)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newExtractor(cfg config.AIConfig) ai.Extractor {
	groq := ai.NewGroq(ai.GroqConfig{
		APIKey:      cfg.GroqAPIKey,
		BaseURL:     cfg.GroqBaseURL,
		TextModel:   cfg.GroqTextModel,
		VisionModel: cfg.GroqVisionModel,
		SpeechModel: cfg.GroqSpeechModel,
	})
	if cfg.Provider != config.ProviderAnthropic {
		return groq
	}
	// Anthropic has no speech endpoint, voice goes through Groq whisper.
	var transcriber ai.Transcriber
	if cfg.GroqAPIKey != "" {
		transcriber = groq
	}
	return ai.NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel, transcriber)
}

func newPendingStore(path string) (pending.Store, func(), error) {
	if path == "" {
		return pending.NewMemoryStore(), func() {}, nil
	}
	bs, err := pending.OpenBolt(path)
	if err != nil {
		return nil, nil, err
	}
	return bs, func() { bs.Close() }, nil
}

func newArchive(ctx context.Context, cfg config.S3Config) (storage.Archive, error) {
	if cfg.Bucket == "" {
		return storage.NopArchive{}, nil
	}
	return storage.NewS3Archive(ctx, storage.S3Config{
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
	})
}
