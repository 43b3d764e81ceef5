package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	defaultAddr          = ":4002"
	defaultMaxUploadSize = 25 << 20
	defaultPresignTTL    = 300 * time.Second
	defaultClamAVPort    = 3310

	// Upper bound on download link lifetime. Per-request ttl values get the
	// same cap in the HTTP layer.
	maxPresignTTLSeconds = 3600
)

// Load reads the full service configuration from the environment once, at
// process start. Components receive the resulting structs explicitly; nothing
// reads environment variables at request time.
func Load() (Config, error) {
	cfg := Config{}

	cfg.HTTP.Addr = getEnv("EVIDENCED_ADDR", defaultAddr)
	cfg.HTTP.MaxUploadSize = int64(getEnvInt("MAXIMUM_FILE_UPLOAD_SIZE", defaultMaxUploadSize))
	if cfg.HTTP.MaxUploadSize <= 0 {
		return Config{}, fmt.Errorf("invalid MAXIMUM_FILE_UPLOAD_SIZE: %d", cfg.HTTP.MaxUploadSize)
	}
	if raw := os.Getenv("PRESIGN_TTL_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid PRESIGN_TTL_SECONDS: %q", raw)
		}
		if seconds > maxPresignTTLSeconds {
			seconds = maxPresignTTLSeconds
		}
		cfg.HTTP.PresignTTL = time.Duration(seconds) * time.Second
	} else {
		cfg.HTTP.PresignTTL = defaultPresignTTL
	}

	cfg.Buckets.Quarantine = os.Getenv("QUARANTINE_BUCKET")
	if cfg.Buckets.Quarantine == "" {
		return Config{}, fmt.Errorf("QUARANTINE_BUCKET is required")
	}
	cfg.Buckets.Scanned = os.Getenv("SCANNED_BUCKET")
	if cfg.Buckets.Scanned == "" {
		return Config{}, fmt.Errorf("SCANNED_BUCKET is required")
	}

	cfg.ClamAV.Host = os.Getenv("CLAMAV_HOST")
	if cfg.ClamAV.Host == "" {
		return Config{}, fmt.Errorf("CLAMAV_HOST is required")
	}
	cfg.ClamAV.Port = getEnvInt("CLAMAV_PORT", defaultClamAVPort)
	if cfg.ClamAV.Port <= 0 || cfg.ClamAV.Port > 65535 {
		return Config{}, fmt.Errorf("invalid CLAMAV_PORT: %d", cfg.ClamAV.Port)
	}

	cfg.Database.DSN = os.Getenv("DATABASE_URL")
	if cfg.Database.DSN == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.S3.Endpoint = os.Getenv("S3_ENDPOINT")
	if cfg.S3.Endpoint == "" {
		return Config{}, fmt.Errorf("S3_ENDPOINT is required")
	}
	cfg.S3.AccessKey = os.Getenv("S3_ACCESS_KEY")
	cfg.S3.SecretKey = os.Getenv("S3_SECRET_KEY")
	if cfg.S3.AccessKey == "" || cfg.S3.SecretKey == "" {
		return Config{}, fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required")
	}
	cfg.S3.Region = getEnv("S3_REGION", "us-east-1")
	cfg.S3.DisableTLS = getEnvBool("S3_DISABLE_TLS", false)
	cfg.S3.ForcePathStyle = getEnvBool("S3_FORCE_PATH_STYLE", true)

	cfg.NATS.URL = os.Getenv("NATS_URL")
	cfg.Quarantine.AgeRecipient = os.Getenv("QUARANTINE_AGE_RECIPIENT")

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
