package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"mullmine/backend/internal/account"
	"mullmine/backend/internal/api/handler"
	"mullmine/backend/internal/chathub"
	"mullmine/backend/internal/config"
	"mullmine/backend/internal/conversation"
	"mullmine/backend/internal/match"
	"mullmine/backend/internal/models"
	"mullmine/backend/internal/moderation"
	"mullmine/backend/internal/room"
	"mullmine/backend/internal/scoring"
	"mullmine/backend/internal/storage"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var logger *slog.Logger
	switch env {
	case envLocal:
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return logger
}

func setupDependencies(cfg *config.Config) (*gorm.DB, *redis.Client) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		// Maps the unique-index violation onto gorm.ErrDuplicatedKey so
		// storage can turn it into ErrNameTaken.
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Topic{},
		&models.Room{},
		&models.Message{},
		&models.Conversation{},
		&models.ReportedChat{},
	)
	if err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	return db, rdb
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}

	cfg := config.MustLoad()
	logger := setupLogger(cfg.Env)
	logger.Info("starting backend", slog.String("env", cfg.Env))

	db, rdb := setupDependencies(cfg)
	store := storage.NewService(db, rdb, logger)

	engine := scoring.NewEngine(store, cfg.Chat.RoomCapacity, cfg.Chat.TopChattyRooms)
	rooms := room.NewService(store, logger, cfg.Chat.RoomCapacity)
	matcher := match.NewService(store, engine, rooms, logger, cfg.Chat.RoomCapacity, cfg.Chat.MaxSuggestions)
	ledger := conversation.NewService(store, logger, cfg.Chat.MessagesPerPage)
	accounts := account.NewService(store, rooms, logger)

	var notifier moderation.Notifier
	if cfg.Telegram.BotToken != "" {
		tg, err := moderation.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ModeratorChatID)
		if err != nil {
			log.Fatalf("Failed to start Telegram notifier: %v", err)
		}
		notifier = tg
	} else {
		logger.Warn("telegram bot token not set, moderator alerts disabled")
	}
	mod := moderation.NewService(store, notifier, logger, cfg.Chat.TranscriptLength)

	hub := chathub.NewHub(store, logger)
	router := chathub.NewRouter(hub, store, accounts, matcher, rooms, ledger, mod, store, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	if cfg.Env == envProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	h := handler.NewHandler(hub, router, accounts, logger, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	r.GET("/anonid", h.GetAnonID)
	r.GET("/ws", h.ServeWebSocket)

	server := &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	logger.Info("listening", slog.String("address", cfg.HTTP.Address))
	log.Fatal(server.ListenAndServe())
}
