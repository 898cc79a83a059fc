package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string

	// Endpoint overrides the account endpoint, e.g. for an S3-compatible test server.
	Endpoint string
}

type X struct {
	BearerToken string
	APIURL      string
}

type Instagram struct {
	AccountID   string
	AccessToken string
	APIURL      string
}

type Telegram struct {
	BotToken string
	ChatID   string
	APIURL   string
}

type Config struct {
	DataDir            string
	PostsFile          string
	QueueFile          string
	LogFile            string
	Timezone           string
	PublishHour        int
	MaxRelayAttempts   int
	MaxPublishAttempts int
	HTTPTimeout        time.Duration
	ProcessingWait     time.Duration
	CronSpec           string
	RedisURI           string
	PostgresURI        string
	Port               string
	SecretKey          string
	APIKey             string
	R2                 R2
	X                  X
	Instagram          Instagram
	Telegram           Telegram
}

func LoadConfig() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("POSTS_FILE", "")
	v.SetDefault("QUEUE_FILE", "")
	v.SetDefault("LOG_FILE", filepath.Join("logs", "publish.log"))
	v.SetDefault("TIMEZONE", "Asia/Taipei")
	v.SetDefault("PUBLISH_HOUR", 12)
	v.SetDefault("MAX_RELAY_ATTEMPTS", 3)
	v.SetDefault("MAX_PUBLISH_ATTEMPTS", 3)
	v.SetDefault("HTTP_TIMEOUT", "60s")
	v.SetDefault("PROCESSING_WAIT", "30s")
	v.SetDefault("CRON_SPEC", "@every 00h05m00s")
	v.SetDefault("REDIS_URI", "")
	v.SetDefault("POSTGRES_URI", "")
	v.SetDefault("PORT", "3000")
	v.SetDefault("SECRET_KEY", "")
	v.SetDefault("API_KEY", "")
	v.SetDefault("R2_ACCOUNT_ID", "")
	v.SetDefault("R2_ACCESS_KEY", "")
	v.SetDefault("R2_SECRET_KEY", "")
	v.SetDefault("R2_BUCKET_NAME", "")
	v.SetDefault("R2_PUBLIC_URL", "")
	v.SetDefault("R2_ENDPOINT", "")
	v.SetDefault("X_BEARER_TOKEN", "")
	v.SetDefault("X_API_URL", "https://api.x.com")
	v.SetDefault("INSTAGRAM_ACCOUNT_ID", "")
	v.SetDefault("INSTAGRAM_ACCESS_TOKEN", "")
	v.SetDefault("INSTAGRAM_API_URL", "https://graph.instagram.com/v21.0")
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("TELEGRAM_CHAT_ID", "")
	v.SetDefault("TELEGRAM_API_URL", "https://api.telegram.org")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DataDir:            v.GetString("DATA_DIR"),
		PostsFile:          v.GetString("POSTS_FILE"),
		QueueFile:          v.GetString("QUEUE_FILE"),
		LogFile:            v.GetString("LOG_FILE"),
		Timezone:           v.GetString("TIMEZONE"),
		PublishHour:        v.GetInt("PUBLISH_HOUR"),
		MaxRelayAttempts:   v.GetInt("MAX_RELAY_ATTEMPTS"),
		MaxPublishAttempts: v.GetInt("MAX_PUBLISH_ATTEMPTS"),
		HTTPTimeout:        v.GetDuration("HTTP_TIMEOUT"),
		ProcessingWait:     v.GetDuration("PROCESSING_WAIT"),
		CronSpec:           v.GetString("CRON_SPEC"),
		RedisURI:           v.GetString("REDIS_URI"),
		PostgresURI:        v.GetString("POSTGRES_URI"),
		Port:               v.GetString("PORT"),
		SecretKey:          v.GetString("SECRET_KEY"),
		APIKey:             v.GetString("API_KEY"),
		R2: R2{
			AccountID:  v.GetString("R2_ACCOUNT_ID"),
			AccessKey:  v.GetString("R2_ACCESS_KEY"),
			SecretKey:  v.GetString("R2_SECRET_KEY"),
			BucketName: v.GetString("R2_BUCKET_NAME"),
			PublicURL:  v.GetString("R2_PUBLIC_URL"),
			Endpoint:   v.GetString("R2_ENDPOINT"),
		},
		X: X{
			BearerToken: v.GetString("X_BEARER_TOKEN"),
			APIURL:      v.GetString("X_API_URL"),
		},
		Instagram: Instagram{
			AccountID:   v.GetString("INSTAGRAM_ACCOUNT_ID"),
			AccessToken: v.GetString("INSTAGRAM_ACCESS_TOKEN"),
			APIURL:      v.GetString("INSTAGRAM_API_URL"),
		},
		Telegram: Telegram{
			BotToken: v.GetString("TELEGRAM_BOT_TOKEN"),
			ChatID:   v.GetString("TELEGRAM_CHAT_ID"),
			APIURL:   v.GetString("TELEGRAM_API_URL"),
		},
	}

	if cfg.PostsFile == "" {
		cfg.PostsFile = filepath.Join(cfg.DataDir, "posts.json")
	}
	if cfg.QueueFile == "" {
		cfg.QueueFile = filepath.Join(cfg.DataDir, "queue.json")
	}
	if cfg.PublishHour < 0 || cfg.PublishHour > 23 {
		return nil, fmt.Errorf("PUBLISH_HOUR must be between 0 and 23, got %d", cfg.PublishHour)
	}
	if cfg.MaxRelayAttempts < 1 {
		cfg.MaxRelayAttempts = 1
	}
	if cfg.MaxPublishAttempts < 1 {
		cfg.MaxPublishAttempts = 1
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Location is the reference time zone for date codes and publish slots.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}
