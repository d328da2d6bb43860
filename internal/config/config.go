package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	RedisURL    string `env:"REDIS_URL,required,notEmpty"`
	JWTSecret   string `env:"JWT_SECRET,required,notEmpty"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Хранилище вложений
	BlobDir        string `env:"BLOB_DIR" envDefault:"./data/blobs"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`

	LinkPreviewTimeout  time.Duration `env:"LINK_PREVIEW_TIMEOUT" envDefault:"5s"`
	LinkPreviewMaxBytes int64         `env:"LINK_PREVIEW_MAX_BYTES" envDefault:"1048576"`

	// Сессии переживают перезапуск процесса
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	ResumeWindow time.Duration `env:"RESUME_WINDOW" envDefault:"2m"`

	HistoryPageSize    int `env:"HISTORY_PAGE_SIZE" envDefault:"50"`
	HistoryMaxPageSize int `env:"HISTORY_MAX_PAGE_SIZE" envDefault:"100"`

	FrameRate  float64 `env:"FRAME_RATE" envDefault:"20"`
	FrameBurst int     `env:"FRAME_BURST" envDefault:"40"`

	PushEndpoint    string `env:"PUSH_ENDPOINT" envDefault:"https://exp.host/--/api/v2/push/send"`
	PushConcurrency int    `env:"PUSH_CONCURRENCY" envDefault:"8"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
}

// Load читает .env.local/.env (если есть) и разбирает переменные окружения.
func Load() (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil {
		_ = godotenv.Load()
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = 50
	}
	if cfg.HistoryMaxPageSize < cfg.HistoryPageSize {
		cfg.HistoryMaxPageSize = cfg.HistoryPageSize
	}
	return cfg, nil
}
