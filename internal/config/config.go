package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	ChannelBase            string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	ProgressCacheTTL       time.Duration
	AttachmentMaxSizeMB    int
	TransitionRateLimit    int
	TransitionRateWindow   time.Duration
	SSEKeepAlive           time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("INTERNLOG")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Internlog API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("channel.base", "internlog")
	v.SetDefault("cloudinary.folder", "internlog/attachments")
	v.SetDefault("progress.cache_ttl", "2m")
	v.SetDefault("attachment.max_size_mb", 10)
	v.SetDefault("transition.rate_limit", 30)
	v.SetDefault("transition.rate_window", "1m")
	v.SetDefault("sse.keep_alive", "30s")

	cacheTTL, err := parseDuration(v, "progress.cache_ttl", 2*time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid progress cache ttl: %w", err)
	}

	rateWindow, err := parseDuration(v, "transition.rate_window", time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid transition rate window: %w", err)
	}

	keepAlive, err := parseDuration(v, "sse.keep_alive", 30*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid sse keep alive: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		ChannelBase:            v.GetString("channel.base"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		ProgressCacheTTL:       cacheTTL,
		AttachmentMaxSizeMB:    v.GetInt("attachment.max_size_mb"),
		TransitionRateLimit:    v.GetInt("transition.rate_limit"),
		TransitionRateWindow:   rateWindow,
		SSEKeepAlive:           keepAlive,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.AttachmentMaxSizeMB <= 0 {
		cfg.AttachmentMaxSizeMB = 10
	}

	if cfg.TransitionRateLimit <= 0 {
		cfg.TransitionRateLimit = 30
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}
	return time.ParseDuration(raw)
}
