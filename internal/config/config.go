package config

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI        string `json:"mongo_uri"`
	Database        string `json:"database"`
	FallbackPrimary string `json:"fallback_primary"`
	Port            string `json:"port"`
	MaxUploadSize   int64  `json:"max_upload_size"`
	FrontendDir     string `json:"frontend_dir"`
	// Seconds between cluster-status refreshes.
	StatusRefreshInterval int `json:"status_refresh_interval"`
	RateLimit             struct {
		Requests int `json:"requests"`
		Duration int `json:"duration"`
	} `json:"rate_limit"`
}

// Load reads the JSON config file, then lets the environment override the
// connection settings. MONGO_URI is the single external knob carrying
// seeds, replica-set name and credentials.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file, using environment as-is")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.MongoURI = getEnv("MONGO_URI", cfg.MongoURI)
	cfg.Database = getEnv("MONGO_DATABASE", cfg.Database)
	cfg.Port = getEnv("PORT", cfg.Port)

	if cfg.Database == "" {
		cfg.Database = "uploadDB"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.MaxUploadSize == 0 {
		cfg.MaxUploadSize = 32 << 20
	}
	if cfg.StatusRefreshInterval == 0 {
		cfg.StatusRefreshInterval = 30
	}
	return &cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
