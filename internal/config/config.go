package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageBackendDisk = "disk"
	StorageBackendS3   = "s3"

	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

const (
	defaultListenAddr      = ":8080"
	defaultDatabaseURL     = "uploads.db"
	defaultStorageBackend  = StorageBackendDisk
	defaultUploadsDir      = "uploads"
	defaultPublicBaseURL   = "http://localhost:8080/uploads"
	defaultLockBackend     = LockBackendLocal
	defaultLockWaitTimeout = "10s"
	defaultLockTTL         = "30s"
	defaultStoreTimeout    = "30s"
	defaultRedisAddr       = "localhost:6379"
	defaultMaxImageDim     = "4096"
	defaultMaxOriginLength = "1000"
	defaultMaxUploadBytes  = "52428800" // 50 MB
	defaultThumbnails      = "true"
	defaultAnimatedThumbs  = "false"
	defaultShutdownTimeout = "15s"
)

type Config struct {
	AppEnv     string
	ListenAddr string

	DatabaseURL string

	StorageBackend string
	UploadsDir     string
	PublicBaseURL  string
	AssetHosts     []string
	CDNBaseURL     string

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	LockBackend     string
	LockWaitTimeout time.Duration
	LockTTL         time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	StoreTimeout    time.Duration
	ShutdownTimeout time.Duration

	MaxImageDimension int
	MaxOriginLength   int
	MaxUploadBytes    int64

	ThumbnailsEnabled       bool
	AllowAnimatedThumbnails bool
}

func Load() (*Config, error) {
	cfg := &Config{}

	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = strings.TrimSpace(os.Getenv("ENV"))
	}
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.ListenAddr = strings.TrimSpace(getEnv("LISTEN_ADDR", defaultListenAddr))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))

	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(getEnv("STORAGE_BACKEND", defaultStorageBackend)))
	cfg.UploadsDir = strings.TrimSpace(getEnv("UPLOADS_DIR", defaultUploadsDir))
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")
	if cfg.PublicBaseURL == "" && cfg.StorageBackend == StorageBackendDisk {
		// the disk backend serves blobs itself, so it always has a base URL
		cfg.PublicBaseURL = defaultPublicBaseURL
	}
	cfg.AssetHosts = parseListEnv("ASSET_HOSTS")
	cfg.CDNBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("CDN_BASE_URL")), "/")

	cfg.S3Endpoint = strings.TrimSpace(os.Getenv("S3_ENDPOINT"))
	cfg.S3Region = strings.TrimSpace(getEnv("S3_REGION", "us-east-1"))
	cfg.S3Bucket = strings.TrimSpace(os.Getenv("S3_BUCKET"))
	cfg.S3AccessKey = strings.TrimSpace(os.Getenv("S3_ACCESS_KEY"))
	cfg.S3SecretKey = strings.TrimSpace(os.Getenv("S3_SECRET_KEY"))

	cfg.LockBackend = strings.ToLower(strings.TrimSpace(getEnv("LOCK_BACKEND", defaultLockBackend)))
	cfg.RedisAddr = strings.TrimSpace(getEnv("REDIS_ADDR", defaultRedisAddr))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	var err error
	cfg.RedisDB, err = parseIntEnv("REDIS_DB", "0")
	if err != nil {
		return nil, err
	}

	cfg.LockWaitTimeout, err = parseDurationEnv("LOCK_WAIT_TIMEOUT", defaultLockWaitTimeout)
	if err != nil {
		return nil, err
	}

	cfg.LockTTL, err = parseDurationEnv("LOCK_TTL", defaultLockTTL)
	if err != nil {
		return nil, err
	}

	cfg.StoreTimeout, err = parseDurationEnv("STORE_TIMEOUT", defaultStoreTimeout)
	if err != nil {
		return nil, err
	}

	cfg.ShutdownTimeout, err = parseDurationEnv("SHUTDOWN_TIMEOUT", defaultShutdownTimeout)
	if err != nil {
		return nil, err
	}

	cfg.MaxImageDimension, err = parseIntEnv("MAX_IMAGE_DIMENSION", defaultMaxImageDim)
	if err != nil {
		return nil, err
	}

	cfg.MaxOriginLength, err = parseIntEnv("MAX_ORIGIN_LENGTH", defaultMaxOriginLength)
	if err != nil {
		return nil, err
	}

	maxBytes, err := parseIntEnv("MAX_UPLOAD_BYTES", defaultMaxUploadBytes)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxBytes)

	cfg.ThumbnailsEnabled = parseBoolEnv("THUMBNAILS_ENABLED", defaultThumbnails)
	cfg.AllowAnimatedThumbnails = parseBoolEnv("ALLOW_ANIMATED_THUMBNAILS", defaultAnimatedThumbs)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.StorageBackend != StorageBackendDisk && cfg.StorageBackend != StorageBackendS3 {
		return fmt.Errorf("STORAGE_BACKEND must be one of: disk, s3")
	}
	if cfg.LockBackend != LockBackendLocal && cfg.LockBackend != LockBackendRedis {
		return fmt.Errorf("LOCK_BACKEND must be one of: local, redis")
	}
	if cfg.LockWaitTimeout <= 0 {
		return fmt.Errorf("LOCK_WAIT_TIMEOUT must be > 0")
	}
	if cfg.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be > 0")
	}
	if cfg.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be > 0")
	}
	if cfg.MaxImageDimension <= 0 {
		return fmt.Errorf("MAX_IMAGE_DIMENSION must be > 0")
	}
	if cfg.MaxOriginLength <= 0 {
		return fmt.Errorf("MAX_ORIGIN_LENGTH must be > 0")
	}
	if cfg.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be > 0")
	}
	if cfg.StorageBackend == StorageBackendS3 {
		if cfg.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET must be set when STORAGE_BACKEND=s3")
		}
		if cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
			return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY must be set when STORAGE_BACKEND=s3")
		}
	}
	if cfg.LockBackend == LockBackendRedis && cfg.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR must be set when LOCK_BACKEND=redis")
	}
	return nil
}

func IsProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func parseListEnv(name string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
