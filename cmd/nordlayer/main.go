package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"nordlayer-bot/internal/bot"
	"nordlayer-bot/internal/config"
	"nordlayer-bot/internal/notify"
	"nordlayer-bot/internal/order"
	"nordlayer-bot/internal/server"
	"nordlayer-bot/internal/storage"
	redisstore "nordlayer-bot/internal/storage/redis"
	"nordlayer-bot/internal/subscription"
	"nordlayer-bot/pkg/api"
	"nordlayer-bot/pkg/logger"
	"nordlayer-bot/pkg/redis"
)

// ENTRY POINT

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// Инициализация логгера
	zapLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	// Обработка сигналов завершения
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	// Инициализация API клиента
	apiClient := api.NewClient(cfg.APIBaseURL, cfg.APITimeout, zapLogger)

	// Хранилище сессий заказа
	sessions, err := buildSessionStore(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to init session store", zap.Error(err))
	}

	// Хранилище подписок
	subStorage, closeSubs, err := buildSubscriptionStorage(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to init subscription storage", zap.Error(err))
	}
	defer closeSubs()

	subs := subscription.NewManager(subStorage, zapLogger)
	machine := order.NewMachine(sessions, apiClient, zapLogger)

	// Создание бота
	tgBot, err := bot.New(cfg, machine, sessions, subs, apiClient, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create bot", zap.Error(err))
	}

	// Вебхук статусов заказов
	dispatcher := notify.NewDispatcher(subs, tgBot, zapLogger)
	srv := server.New(fmt.Sprintf("%s:%d", cfg.WebhookHost, cfg.WebhookPort), dispatcher, zapLogger)

	go func() {
		if err := srv.Start(); err != nil {
			zapLogger.Error("HTTP server stopped with error", zap.Error(err))
			cancel()
		}
	}()

	// Периодическая очистка брошенных сессий
	go runSessionSweeper(ctx, sessions, cfg, zapLogger)

	// Запуск бота
	if err := tgBot.Start(ctx); err != nil {
		zapLogger.Fatal("Bot stopped with error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	zapLogger.Info("Bot shutdown gracefully")
}

func buildSessionStore(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) (order.Store, error) {
	switch cfg.SessionBackend {
	case "redis":
		client := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		store, err := redisstore.New(ctx, client, cfg.SessionMaxIdle, zapLogger)
		if err != nil {
			return nil, fmt.Errorf("redis session store: %w", err)
		}
		zapLogger.Info("using redis session store", zap.String("addr", cfg.RedisAddr))
		return store, nil
	case "memory":
		zapLogger.Info("using in-memory session store")
		return order.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}

func buildSubscriptionStorage(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) (subscription.Storage, func(), error) {
	switch cfg.SubscriptionBackend {
	case "postgres":
		dsn := storage.DSN(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
		db, err := storage.Connect(ctx, dsn, zapLogger)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := storage.Migrate(db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		zapLogger.Info("using postgres subscription storage", zap.String("host", cfg.DBHost))
		return storage.NewSubscriptionStorage(db), func() { db.Close() }, nil
	case "memory":
		zapLogger.Info("using in-memory subscription storage")
		return subscription.NewMemoryStorage(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown subscription backend %q", cfg.SubscriptionBackend)
	}
}

func runSessionSweeper(ctx context.Context, sessions order.Store, cfg *config.Config, zapLogger *zap.Logger) {
	ticker := time.NewTicker(cfg.SessionSweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sessions.Sweep(ctx, cfg.SessionMaxIdle)
			if err != nil {
				zapLogger.Error("session sweep failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				zapLogger.Info("swept idle sessions", zap.Int("count", len(removed)))
			}
		}
	}
}
