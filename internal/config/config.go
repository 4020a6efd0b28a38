package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ----------------------------
	// SMTP
	// ----------------------------
	SMTPHost     string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUser     string `envconfig:"SMTP_USER" default:""`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" default:""`
	SenderName   string `envconfig:"SENDER_NAME" default:"Trybemarket"`
	SenderEmail  string `envconfig:"SENDER_EMAIL" default:"noreply@trybemarket.com"`

	// ----------------------------
	// Delivery pipeline
	// ----------------------------
	BatchSize          int           `envconfig:"BATCH_SIZE" default:"200"`
	MaxRetries         int           `envconfig:"MAX_RETRIES" default:"3"`
	PollInterval       time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	MaxBatchesPerCycle int           `envconfig:"MAX_BATCHES_PER_CYCLE" default:"10"`
	WorkerFanout       int           `envconfig:"WORKER_FANOUT" default:"5"`
	SendRateLimit      int           `envconfig:"SEND_RATE_LIMIT" default:"10"`
	SendTimeout        time.Duration `envconfig:"SEND_TIMEOUT" default:"30s"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort string `envconfig:"API_PORT" default:"8080"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Storage
	// ----------------------------
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	RedisAddr   string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
}

func Load() (*Config, error) {
	// Optional .env for local development; real environment always wins.
	_ = godotenv.Load()

	var cfg Config
	err := envconfig.Process("", &cfg)
	return &cfg, err
}
