package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"secretariat-data/internal/config"
	"secretariat-data/internal/consumer"
	"secretariat-data/internal/database"
	"secretariat-data/internal/fieldcrypt"
	httpapi "secretariat-data/internal/http"
	"secretariat-data/internal/logger"
	"secretariat-data/internal/mqtt"
	"secretariat-data/internal/notify"
	"secretariat-data/internal/repository"
	"secretariat-data/internal/service"
	"secretariat-data/internal/store"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "secretariat-data")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cipher, err := fieldcrypt.New(cfg.Crypto.FieldKey)
	if err != nil {
		log.Fatal("Invalid FIELD_KEY", zap.Error(err))
	}

	var (
		db      *sql.DB
		creds   repository.CredentialsRepository
		sources repository.SourcesRepository
	)
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			log.Info("DB enabled for secretariat-data")
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory repositories", zap.Error(err))
		}
	}
	if db != nil {
		applied, err := database.Migrate(ctx, db, log)
		if err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
		log.Info("Migrations up to date", zap.Int("applied", applied))
		creds = repository.NewPostgresCredentialsRepository(db)
		sources = repository.NewPostgresSourcesRepository(db, cipher)
	} else {
		// DB 未就绪：内存 repo（来源为空，仅管理员可登录）
		creds = repository.NewMemoryCredentialsRepository()
		sources = repository.NewMemorySourcesRepository()
	}

	var (
		redisClient *redis.Client
		kv          store.KV
		locker      store.Locker = store.NewLocalLocker()
	)
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("Redis enabled but ping failed, using in-process locks", zap.Error(err))
			_ = redisClient.Close()
			redisClient = nil
		} else {
			kv = store.NewRedisKV(redisClient)
			locker = store.NewKVLocker(kv, "credentials:lock:", cfg.Reconcile.LockTTL)
			log.Info("Redis enabled for secretariat-data", zap.String("addr", cfg.Redis.Addr))
		}
	}

	reconciler := service.NewReconciler(creds, sources, locker, cfg.Admin.Username, log).
		WithReportStore(service.NewReportStore(kv))

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		if c, err := mqtt.NewClient(&cfg.MQTT, log); err == nil {
			mqttClient = c
			reconciler.WithEvents(mqtt.NewCredentialEventPublisher(c, cfg.MQTT.Topic, cfg.MQTT.QoS))
		} else {
			log.Warn("MQTT enabled but connection failed, credential events disabled", zap.Error(err))
		}
	}
	if cfg.Webhook.URL != "" {
		reconciler.WithNotifier(notify.NewWebhookNotifier(cfg.Webhook.URL, log))
	}

	authService := service.NewAuthService(creds, sources,
		service.AdminIdentity{Username: cfg.Admin.Username, Password: cfg.Admin.Password},
		cfg.Auth.Token, log)
	credentialService := service.NewCredentialService(creds, sources, reconciler, log)

	router := httpapi.NewRouter(log)
	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	credentialsHandler := httpapi.NewCredentialsHandler(credentialService, reconciler, log)
	if redisClient != nil {
		credentialsHandler.WithQueue(consumer.NewSourceEventPublisher(redisClient, cfg.Reconcile.Stream, log))

		sourceConsumer := consumer.NewSourceEventConsumer(redisClient, reconciler, log,
			cfg.Reconcile.Stream, cfg.Reconcile.ConsumerGroup, cfg.Reconcile.ConsumerName, cfg.Reconcile.BatchSize)
		srv.Go("source-event-consumer", sourceConsumer.Start)
	}

	router.RegisterHealthRoutes(func() error {
		if db == nil {
			return nil
		}
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		defer pingCancel()
		return db.PingContext(pingCtx)
	})
	router.RegisterAuthRoutes(httpapi.NewAuthHandler(authService, log))
	router.RegisterCredentialRoutes(credentialsHandler, cfg.Auth.Token)

	if cfg.Reconcile.ResyncOnStart {
		// the reconciler logs the summary itself
		srv.Go("startup-resync", func(ctx context.Context) error {
			_, err := reconciler.ResyncAll(ctx)
			return err
		})
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server stopped", zap.Error(err))
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if mqttClient != nil {
		mqttClient.Disconnect()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = database.Close(db)
	}
}
