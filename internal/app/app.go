package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"resolvebot/internal/bot"
	"resolvebot/internal/config"
	"resolvebot/internal/handlers"
	"resolvebot/internal/repositories"
	"resolvebot/internal/routes"
	"resolvebot/internal/services"
)

// Run wires the whole process together and blocks until shutdown: the
// Telegram dispatcher, the ping scheduler and the HTTP surface all share one
// cancellation context.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Telegram.BotToken == "" {
		return errors.New("telegram bot token is not configured")
	}

	// === DB ===
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("closing database failed")
		}
	}()

	// An unreachable datastore at boot degrades rather than kills the
	// process: the scheduler's queries keep failing and logging until the
	// database comes back.
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		log.Warn().Err(err).Msg("database unreachable at startup, continuing degraded")
	}
	cancelPing()

	// === Repos & services ===
	taskRepo := repositories.NewTaskRepository(db)
	taskService := services.NewTaskService(taskRepo, services.Defaults{
		IntervalMinutes: cfg.Scheduler.DefaultIntervalMinutes,
		MaxPings:        cfg.Scheduler.DefaultMaxPings,
		EscalateChatID:  cfg.Telegram.EscalationChatID,
	})

	var emailService services.EmailService
	if cfg.EmailEnabled() {
		emailService = services.NewEmailService(
			cfg.Email.SMTPHost,
			cfg.Email.SMTPPort,
			cfg.Email.SMTPUser,
			cfg.Email.SMTPPassword,
			cfg.Email.FromEmail,
			cfg.Email.SupervisorEmail,
		)
	}

	// === Telegram ===
	botClient, err := bot.NewClient(cfg.Telegram.BotToken)
	if err != nil {
		return err
	}
	dispatcher := bot.NewDispatcher(botClient, taskService)

	scheduler := services.NewScheduler(taskRepo, botClient, emailService,
		time.Duration(cfg.Scheduler.TickSeconds)*time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go scheduler.Run(ctx)
	go dispatcher.Run(ctx)

	// === HTTP ===
	router := gin.Default()
	router.Use(corsMiddleware())
	routes.SetupRoutes(router,
		handlers.NewHealthHandler(db),
		handlers.NewTaskHandler(taskService),
	)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	// Drain the periodic scheduler and the update loop.
	<-scheduler.Done()
	<-dispatcher.Done()
	return nil
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
