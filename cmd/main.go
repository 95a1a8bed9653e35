package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Koksbox/dream-interpreter/internal/config"
	"github.com/Koksbox/dream-interpreter/internal/infrastructure"
	"github.com/Koksbox/dream-interpreter/internal/interfaces"
	"github.com/Koksbox/dream-interpreter/internal/interfaces/http"
	"github.com/Koksbox/dream-interpreter/internal/interfaces/telegram"
	"github.com/Koksbox/dream-interpreter/internal/logging"
	"github.com/Koksbox/dream-interpreter/internal/repository"
	"github.com/Koksbox/dream-interpreter/internal/usecases"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "dream-interpreter:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.NewJSON(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, closeDB, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	dialect, err := repository.DialectFor(cfg.DBDriver)
	if err != nil {
		return err
	}
	store := repository.NewSQLManager(db, dialect).WithLogger(log)
	if err := store.RunMigrations(ctx); err != nil {
		return err
	}
	log.Info(ctx, "database ready", "driver", cfg.DBDriver)

	gen, err := newGenerationClient(ctx, cfg)
	if err != nil {
		return err
	}

	engineCfg := usecases.DefaultEngineConfig(loc)
	engineCfg.DailyLimit = cfg.DailyLimit
	engineCfg.GenerationTimeout = cfg.GenerationTimeout

	locks := infrastructure.NewUserLocks()
	identity := usecases.NewIdentityResolver(store, log)
	profiles := usecases.NewProfileService(store, locks, log)
	dreams := usecases.NewDreamService(store, locks, gen, engineCfg, log)
	auth := usecases.NewAuthUsecase(identity, profiles, cfg.JWTSecret, cfg.TokenTTL)
	if cfg.AdminPasswordHash != "" {
		auth.WithAdmin(cfg.AdminUsername, cfg.AdminPasswordHash)
	}

	var wg sync.WaitGroup

	webLimiter := infrastructure.NewMessageRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	wg.Add(1)
	go func() {
		defer wg.Done()
		webLimiter.Run(ctx, time.Minute)
	}()

	botName := cfg.TelegramBotName
	if cfg.TelegramToken != "" {
		tg, err := infrastructure.NewTelegramClient(cfg.TelegramToken)
		if err != nil {
			return err
		}
		if botName == "" {
			botName = tg.UserName()
		}

		limiter := infrastructure.NewMessageRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		bot := telegram.NewBot(tg, telegram.Deps{
			Dreams:   dreams,
			Identity: identity,
			Profiles: profiles,
			Auth:     auth,
			Limiter:  limiter,
			Log:      log.With("channel", "telegram"),
			Location: loc,
			SiteURL:  cfg.SiteURL,
		})

		wg.Add(3)
		go func() {
			defer wg.Done()
			limiter.Run(ctx, time.Minute)
		}()
		go func() {
			defer wg.Done()
			bot.RunJanitor(ctx, 10*time.Minute, 24*time.Hour)
		}()
		go func() {
			defer wg.Done()
			log.Info(ctx, "telegram bot polling", "bot", tg.UserName())
			tg.Poll(ctx, bot.HandleUpdate)
		}()
	} else {
		log.Warn(ctx, "telegram disabled, TELEGRAM_BOT_TOKEN is empty")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	http.SetupRoutes(r, http.Deps{
		Dreams:   dreams,
		Profiles: profiles,
		Auth:     auth,
		DB:       db,
		Log:      log.With("channel", "web"),
		Location: loc,
		BotName:  botName,
	}, http.NewMiddleware(cfg.JWTSecret, webLimiter))

	srv := &nethttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "http shutdown", "error", err)
	}
	wg.Wait()
	return nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, func(), error) {
	switch cfg.DBDriver {
	case "postgres":
		pg, err := infrastructure.NewPostgresClient(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg.DB, pg.Close, nil
	default:
		db, err := infrastructure.OpenSQLite(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	}
}

func newGenerationClient(ctx context.Context, cfg *config.Config) (interfaces.GenerationClient, error) {
	if cfg.UseMockLLM {
		return infrastructure.NewMockGenerationClient(), nil
	}
	return infrastructure.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
}
