package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string `env:"-"`

	HTTPPort     int    `env:"HTTP_PORT" envDefault:"8080"`
	MetricsPort  int    `env:"METRICS_PORT"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile      string `env:"LOG_FILE"`
	OTLPEndpoint string `env:"OTLP_ENDPOINT"`

	StoreBackend      string   `env:"STORE_BACKEND" envDefault:"postgres"`
	DatabaseURL       string   `env:"DATABASE_URL"`
	MongoURI          string   `env:"MONGODB_URI"`
	MongoDatabase     string   `env:"MONGODB_DATABASE" envDefault:"channel_bridge"`
	SQLitePath        string   `env:"SQLITE_PATH" envDefault:"data/messages.db"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" envSeparator:","`
	EventsTopicPrefix string   `env:"MESSAGE_EVENTS_TOPIC_PREFIX" envDefault:"messages"`

	GraphBaseURL        string        `env:"GRAPH_API_BASE_URL" envDefault:"https://graph.facebook.com/v17.0"`
	HTTPTimeout         time.Duration `env:"CHANNEL_HTTP_TIMEOUT" envDefault:"10s"`
	ReadRetryMaxElapsed time.Duration `env:"CHANNEL_READ_RETRY_MAX_ELAPSED" envDefault:"0s"`
	CORSOrigins         []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	WhatsApp  WhatsAppConfig
	Instagram InstagramConfig
}

type WhatsAppConfig struct {
	APIKey           string `env:"WHATSAPP_API_KEY"`
	AccessToken      string `env:"WHATSAPP_ACCESS_TOKEN"`
	PhoneNumberID    string `env:"WHATSAPP_PHONE_NUMBER_ID"`
	TemplateLanguage string `env:"WHATSAPP_TEMPLATE_LANGUAGE" envDefault:"pt_BR"`
	VerifyToken      string `env:"WHATSAPP_VERIFY_TOKEN"`
	AppSecret        string `env:"WHATSAPP_APP_SECRET"`
}

type InstagramConfig struct {
	AccessToken string `env:"INSTAGRAM_ACCESS_TOKEN"`
	PageID      string `env:"INSTAGRAM_PAGE_ID"`
	VerifyToken string `env:"INSTAGRAM_VERIFY_TOKEN"`
	AppSecret   string `env:"INSTAGRAM_APP_SECRET"`
}

// LoadConfig reads the environment, after loading ENV_FILE (or ./.env when
// present) without overriding variables that are already set.
func LoadConfig(service string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := &Config{ServiceName: service}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = cfg.HTTPPort + 1000
	}
	return cfg, nil
}

func loadEnvFile() error {
	path := os.Getenv("ENV_FILE")
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
