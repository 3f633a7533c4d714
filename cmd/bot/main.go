package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"aura-bot/internal/api"
	"aura-bot/internal/bot"
	"aura-bot/internal/config"
	"aura-bot/internal/database"
	"aura-bot/internal/guard"
	"aura-bot/internal/llm"
	"aura-bot/internal/payment"
	"aura-bot/internal/refcode"
	"aura-bot/internal/referral"
	"aura-bot/internal/worker"

	"golang.org/x/sync/errgroup"
)

func main() {
	// Load Configuration
	cfg := config.LoadConfig()

	// Connect to Database
	db, err := database.ConnectPostgres(cfg)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Could not migrate database: %v", err)
	}

	// Connect to Redis
	rdb, err := database.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Could not connect to redis: %v", err)
	}

	codec := refcode.NewCodec(cfg.RefSalt)
	engine := referral.NewEngine(db, codec, cfg.JoinBonusDays, cfg.PaidBonusDays, nil)

	guards := guard.New(guard.NewRedisStore(rdb), cfg.RateLimitPerMinute, cfg.DuplicateTTL)

	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	paymentClient := payment.NewClient(cfg.YookassaShopID, cfg.YookassaKey)

	tgBot, err := bot.NewBot(cfg.BotToken, db, engine, guards, llmClient, paymentClient, cfg.JournalWindow)
	if err != nil {
		log.Fatalf("Could not create bot: %v", err)
	}

	// Ledger notifications flow back out through the chat transport.
	engine.Notifier = bot.NewTelegramNotifier(db, tgBot.Instance)

	service := api.NewService(db, engine, cfg.ReferralBaseURL, cfg.MaxRegistrationsPerIP)
	webhook := api.NewWebhookHandler(db, engine, cfg.AllowedYooIp)
	router := api.NewHandler(service, webhook).Router()

	server := &http.Server{Addr: cfg.ListenAddr, Handler: router}

	checker := worker.NewChecker(db, rdb, engine.Notifier)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Println("Starting Telegram bot...")
		return tgBot.Start(ctx)
	})

	group.Go(func() error {
		log.Printf("Starting HTTP server on %s...", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		checker.Start(ctx)
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	log.Println("Service started successfully")

	if err := group.Wait(); err != nil {
		log.Fatalf("Service stopped with error: %v", err)
	}
	log.Println("Service stopped")
}
