package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mediastore/internal/config"
	"mediastore/internal/database"
	"mediastore/internal/domain/upload"
	"mediastore/internal/lock"
	"mediastore/internal/media"
	"mediastore/internal/middleware"
	"mediastore/internal/pkg/logger"
	"mediastore/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	mode := logger.DevelopmentMode
	if config.IsProdLike(cfg.AppEnv) {
		mode = logger.ProductionMode
		gin.SetMode(gin.ReleaseMode)
	}
	zlog := logger.MustNew(mode)
	defer func() { _ = zlog.Sync() }()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("database connection failed", zap.Error(err))
	}
	if err := db.AutoMigrate(&upload.Upload{}, &upload.OptimizedImage{}); err != nil {
		zlog.Fatal("schema migration failed", zap.Error(err))
	}

	ctx := context.Background()

	store, err := buildStore(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("storage backend init failed", zap.Error(err))
	}

	locker, err := buildLocker(ctx, cfg)
	if err != nil {
		zlog.Fatal("lock backend init failed", zap.Error(err))
	}

	uploadRepo := upload.NewRepository(db)
	optimizedRepo := upload.NewOptimizedImageRepository(db)
	transformer := media.NewTransformer()

	uploadService := upload.NewService(uploadRepo, optimizedRepo, store, locker, transformer, upload.Config{
		MaxImageDimension:       cfg.MaxImageDimension,
		MaxOriginLength:         cfg.MaxOriginLength,
		MaxUploadBytes:          cfg.MaxUploadBytes,
		ThumbnailsEnabled:       cfg.ThumbnailsEnabled,
		AllowAnimatedThumbnails: cfg.AllowAnimatedThumbnails,
		StoreTimeout:            cfg.StoreTimeout,
		AssetHosts:              cfg.AssetHosts,
		CDNBaseURL:              cfg.CDNBaseURL,
	}, zlog)
	uploadHandler := upload.NewHandler(uploadService)

	r := gin.New()
	r.Use(middleware.RequestLogger(zlog))
	r.Use(middleware.Recovery(zlog))
	r.Use(middleware.CORS())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.StorageBackend == config.StorageBackendDisk {
		r.Static("/uploads", cfg.UploadsDir)
	}

	v1 := r.Group("/api/v1")
	upload.RegisterRoutes(v1, uploadHandler)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		zlog.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("shutdown incomplete", zap.Error(err))
	}
}

func buildStore(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (storage.Store, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendS3:
		return storage.NewS3Store(ctx, storage.S3Config{
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Endpoint:   cfg.S3Endpoint,
			PublicBase: cfg.PublicBaseURL,
		}, zlog)
	default:
		return storage.NewDiskStore(cfg.UploadsDir, cfg.PublicBaseURL), nil
	}
}

func buildLocker(ctx context.Context, cfg *config.Config) (lock.Locker, error) {
	if cfg.LockBackend != config.LockBackendRedis {
		return lock.NewLocalLocker(cfg.LockWaitTimeout), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return lock.NewRedisLocker(client, cfg.LockWaitTimeout, cfg.LockTTL), nil
}
