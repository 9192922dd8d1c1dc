package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const DefaultConfigPath = "configs/config.yaml"

// ErrMissingToken is returned when no bot credential is configured
var ErrMissingToken = errors.New("TELEGRAM_BOT_TOKEN (or BOT_TOKEN) environment variable is required")

const (
	EngineWhisperCLI = "whisper-cli"
	EngineOpenAI     = "openai"
	EngineSpeechKit  = "speechkit"

	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Debug bool `yaml:"debug" env:"LOG_DEBUG" env-default:"false"`

	Telegram struct {
		Token        string        `yaml:"token" env:"TELEGRAM_BOT_TOKEN"`
		URL          string        `yaml:"url" env:"TELEGRAM_API_URL" env-default:"https://api.telegram.org"`
		PollTimeout  time.Duration `yaml:"poll_timeout" env:"POLL_TIMEOUT" env-default:"30s"`
		MaxFileSize  int64         `yaml:"max_file_size" env:"MAX_FILE_SIZE" env-default:"20971520"`
		ArtifactPath string        `yaml:"artifact_path" env:"ARTIFACT_PATH" env-default:"audio.ogg"`
	} `yaml:"telegram"`

	Cursor struct {
		Backend string `yaml:"backend" env:"CURSOR_BACKEND" env-default:"file"`
		Path    string `yaml:"path" env:"CURSOR_PATH" env-default:"update_offset.txt"`
		Name    string `yaml:"name" env:"CURSOR_NAME" env-default:"voxrun"`
	} `yaml:"cursor"`

	Engine struct {
		Kind             string        `yaml:"kind" env:"ENGINE" env-default:"whisper-cli"`
		Language         string        `yaml:"language" env:"ENGINE_LANGUAGE"`
		WhisperBinary    string        `yaml:"whisper_binary" env:"WHISPER_BINARY" env-default:"whisper"`
		WhisperModel     string        `yaml:"whisper_model" env:"WHISPER_MODEL" env-default:"base"`
		OpenAIKey        string        `yaml:"openai_api_key" env:"OPENAI_API_KEY"`
		OpenAIBaseURL    string        `yaml:"openai_base_url" env:"OPENAI_BASE_URL"`
		OpenAIModel      string        `yaml:"openai_model" env:"OPENAI_MODEL" env-default:"whisper-1"`
		RecognitionLimit time.Duration `yaml:"recognition_limit" env:"RECOGNITION_LIMIT" env-default:"10m"`
	} `yaml:"engine"`

	SpeechKit struct {
		FolderID string `yaml:"folder_id" env:"YANDEX_FOLDER_ID"`
		APIKey   string `yaml:"api_key" env:"YANDEX_API_KEY"`
	} `yaml:"speechkit"`

	Postgres struct {
		DSN        string `yaml:"dsn" env:"POSTGRES_DSN"`
		Migrations string `yaml:"migrations" env:"POSTGRES_MIGRATIONS" env-default:"migrations"`
	} `yaml:"postgres"`

	S3 struct {
		Endpoint  string `yaml:"endpoint" env:"S3_ENDPOINT" env-default:"https://storage.yandexcloud.net"`
		Region    string `yaml:"region" env:"S3_REGION" env-default:"ru-central1"`
		AccessKey string `yaml:"access_key" env:"S3_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"S3_SECRET_KEY"`
		Bucket    string `yaml:"bucket" env:"S3_BUCKET"`
	} `yaml:"s3"`

	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
		Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
		DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	} `yaml:"redis"`

	RabbitMQ struct {
		URL string `yaml:"url" env:"RABBITMQ_URL"`
	} `yaml:"rabbitmq"`
}

// LoadConfig reads .env, the optional YAML file and the environment, in that
// order of increasing precedence, and validates the result.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultConfigPath
	}

	cfg, err := load(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func load(path string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	// older deployments export the token as BOT_TOKEN
	if cfg.Telegram.Token == "" {
		cfg.Telegram.Token = os.Getenv("BOT_TOKEN")
	}
	cfg.Telegram.Token = strings.TrimSpace(cfg.Telegram.Token)

	return &cfg, nil
}

// Validate checks the settings the run cannot start without
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return ErrMissingToken
	}

	switch c.Cursor.Backend {
	case BackendFile:
		if c.Cursor.Path == "" {
			return errors.New("CURSOR_PATH must not be empty")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("REDIS_ADDR is required for the redis cursor backend")
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("POSTGRES_DSN is required for the postgres cursor backend")
		}
	default:
		return fmt.Errorf("unknown cursor backend %q", c.Cursor.Backend)
	}

	switch c.Engine.Kind {
	case EngineWhisperCLI:
	case EngineOpenAI:
		if c.Engine.OpenAIKey == "" && c.Engine.OpenAIBaseURL == "" {
			return errors.New("OPENAI_API_KEY is required for the openai engine")
		}
	case EngineSpeechKit:
		if c.SpeechKit.APIKey == "" || c.SpeechKit.FolderID == "" {
			return errors.New("YANDEX_API_KEY and YANDEX_FOLDER_ID are required for the speechkit engine")
		}
		if c.S3.Bucket == "" {
			return errors.New("S3_BUCKET is required for the speechkit engine")
		}
	default:
		return fmt.Errorf("unknown engine %q", c.Engine.Kind)
	}

	if c.Telegram.ArtifactPath == "" {
		return errors.New("ARTIFACT_PATH must not be empty")
	}

	return nil
}
