package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP       HTTPConfig
	Database   DatabaseConfig
	Extraction ExtractionConfig
	Media      MediaConfig
	AMQP       AMQPConfig
	Fluent     FluentConfig
	Groups     GroupsConfig
	StatsCron  string
	LogLevel   string
	LogFile    string
}

type HTTPConfig struct {
	Addr         string
	CORSOrigins  []string
	WebhookToken string
}

type DatabaseConfig struct {
	Driver     string // postgres, sqlite
	URL        string
	SQLitePath string
}

type ExtractionConfig struct {
	URL          string // remote /extract endpoint; empty means in-process Gemini
	GeminiAPIKey string
	GeminiModel  string
	Timeout      time.Duration
}

type MediaConfig struct {
	Backend      string // disk, s3
	Dir          string
	BaseURL      string
	AllowedHosts []string // hosts media URLs may be fetched from
	S3           S3Config
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for DO Spaces, R2, etc.
	AccessKeyID     string
	SecretAccessKey string
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

type FluentConfig struct {
	Enabled bool
	Host    string
	Port    int
	Tag     string
}

// GroupsConfig is the monitored-conversation policy.
type GroupsConfig struct {
	AllowList []string `yaml:"allow_list"`
	Keywords  []string `yaml:"keywords"`
}

var DefaultGroups = GroupsConfig{
	AllowList: []string{"Real Estate Listings"},
	Keywords:  []string{"real estate", "property", "properties", "listing", "listings", "realty"},
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:         getEnv("HTTP_ADDR", ":3001"),
			CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"http://localhost:3000"}),
			WebhookToken: os.Getenv("WEBHOOK_TOKEN"),
		},
		Database: DatabaseConfig{
			Driver:     getEnv("DATABASE_DRIVER", "postgres"),
			URL:        os.Getenv("DATABASE_URL"),
			SQLitePath: getEnv("SQLITE_PATH", "listings.db"),
		},
		Extraction: ExtractionConfig{
			URL:          os.Getenv("EXTRACT_URL"),
			GeminiAPIKey: getEnv("GOOGLE_API_KEY", os.Getenv("GOOGLE_GENERATIVE_AI_API_KEY")),
			GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			Timeout:      getEnvDuration("EXTRACT_TIMEOUT", 60*time.Second),
		},
		Media: MediaConfig{
			Backend:      getEnv("MEDIA_BACKEND", "disk"),
			Dir:          getEnv("MEDIA_DIR", "images"),
			BaseURL:      getEnv("MEDIA_BASE_URL", "/images"),
			AllowedHosts: getEnvList("MEDIA_ALLOWED_HOSTS", nil),
			S3: S3Config{
				Bucket:          os.Getenv("S3_BUCKET"),
				Region:          getEnv("S3_REGION", "us-east-1"),
				Endpoint:        os.Getenv("S3_ENDPOINT"),
				AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			},
		},
		AMQP: AMQPConfig{
			URL:      os.Getenv("AMQP_URL"),
			Exchange: getEnv("AMQP_EXCHANGE", "listing_events"),
		},
		Fluent: FluentConfig{
			Enabled: getEnvBool("FLUENT_ENABLED", false),
			Host:    getEnv("FLUENT_HOST", "127.0.0.1"),
			Port:    getEnvInt("FLUENT_PORT", 24224),
			Tag:     getEnv("FLUENT_TAG", "wa_listings"),
		},
		StatsCron: getEnv("STATS_CRON", "@every 5m"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFile:   getEnv("LOG_FILE", "daemon.log"),
	}

	if cfg.HTTP.WebhookToken == "" {
		return nil, errors.New("WEBHOOK_TOKEN is required")
	}

	groups, err := LoadGroups(getEnv("GROUPS_FILE", "config/groups.yaml"))
	if err != nil {
		return nil, err
	}
	cfg.Groups = *groups

	return cfg, nil
}

// LoadGroups reads the group policy file. A missing file yields DefaultGroups.
func LoadGroups(path string) (*GroupsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			groups := DefaultGroups
			return &groups, nil
		}
		return nil, err
	}

	var groups GroupsConfig
	if err := yaml.Unmarshal(data, &groups); err != nil {
		return nil, err
	}
	if len(groups.AllowList) == 0 && len(groups.Keywords) == 0 {
		groups = DefaultGroups
	}
	return &groups, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
