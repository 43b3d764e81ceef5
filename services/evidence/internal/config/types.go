package config

import (
	"time"

	gos3 "evidenced/pkg/s3"
)

type Config struct {
	HTTP       HTTPConfig
	S3         gos3.Config
	Buckets    BucketConfig
	ClamAV     ClamAVConfig
	Database   DatabaseConfig
	NATS       NATSConfig
	Quarantine QuarantineConfig
}

type HTTPConfig struct {
	Addr          string
	MaxUploadSize int64
	PresignTTL    time.Duration
}

type BucketConfig struct {
	Quarantine string
	Scanned    string
}

type ClamAVConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	DSN string
}

type NATSConfig struct {
	URL string
}

type QuarantineConfig struct {
	// AgeRecipient, when set, enables sealing of quarantined objects.
	AgeRecipient string
}
