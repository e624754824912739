package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Inference InferenceConfig `yaml:"inference"`
	Limits    LimitsConfig    `yaml:"limits"`
	Raster    RasterConfig    `yaml:"raster"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
}

// InferenceConfig holds settings for the local model service.
type InferenceConfig struct {
	Provider      string        `yaml:"provider"` // "ollama" | "openai"
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	TextModel     string        `yaml:"text_model"`
	VisionModel   string        `yaml:"vision_model"`
	Temperature   float32       `yaml:"temperature"`
	MaxTokens     int           `yaml:"max_tokens"`
	TextTimeout   time.Duration `yaml:"text_timeout"`
	VisionTimeout time.Duration `yaml:"vision_timeout"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
}

// LimitsConfig holds the job precondition ceilings.
type LimitsConfig struct {
	MaxBytes       int64 `yaml:"max_bytes"`
	MaxTextPages   int   `yaml:"max_text_pages"`
	MaxVisionPages int   `yaml:"max_vision_pages"`
	ChunkMaxChars  int   `yaml:"chunk_max_chars"`
}

// RasterConfig holds settings for the external PDF-to-image tool.
type RasterConfig struct {
	Binary  string `yaml:"binary"`
	DPI     int    `yaml:"dpi"`
	Format  string `yaml:"format"`
	TempDir string `yaml:"temp_dir"`
}

// DedupConfig tunes text-mode deduplication.
type DedupConfig struct {
	LessonKeyChars int `yaml:"lesson_key_chars"`
}

// DatabaseConfig holds job-ledger configuration. An empty DSN disables the ledger.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// ServerConfig holds daemon-related configuration
type ServerConfig struct {
	GRPCAddr   string        `yaml:"grpc_addr"`
	Workers    int           `yaml:"workers"`
	QueueSize  int           `yaml:"queue_size"`
	JobTimeout time.Duration `yaml:"job_timeout"`

	// JobRetention bounds how long finished job states stay in memory.
	JobRetention time.Duration `yaml:"job_retention"`

	// WatchDir, when set, is a hot folder whose PDFs are submitted as jobs.
	WatchDir  string `yaml:"watch_dir"`
	WatchMode string `yaml:"watch_mode"`
}

// DefaultConfig returns the built-in defaults before file and env overrides.
func DefaultConfig() *Config {
	return &Config{
		Inference: InferenceConfig{
			Provider:      "ollama",
			BaseURL:       "http://localhost:11434",
			TextModel:     "llama3.1:8b",
			VisionModel:   "llama3.2-vision:11b",
			Temperature:   0.1,
			MaxTokens:     4096,
			TextTimeout:   10 * time.Minute,
			VisionTimeout: 5 * time.Minute,
			ProbeTimeout:  5 * time.Second,
		},
		Limits: LimitsConfig{
			MaxBytes:       25 << 20,
			MaxTextPages:   200,
			MaxVisionPages: 40,
			ChunkMaxChars:  12000,
		},
		Raster: RasterConfig{
			Binary: "pdftoppm",
			DPI:    150,
			Format: "png",
		},
		Dedup: DedupConfig{
			LessonKeyChars: 200,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			MaxConnLifetime: 30 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Server: ServerConfig{
			GRPCAddr:   ":8080",
			Workers:    1,
			QueueSize:  32,
			JobTimeout: 60 * time.Minute,
			WatchMode:  "text",

			JobRetention: time.Hour,
		},
	}
}

// LoadConfig loads defaults, then the optional YAML file named by
// EXAMIMPORT_CONFIG, then environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if path := os.Getenv("EXAMIMPORT_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewAppError("CONFIG_ERROR", "read config file", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("parse config file %s", path), err)
	}
	return nil
}

func (c *Config) applyEnv() {
	in := &c.Inference
	in.Provider = getEnv("INFERENCE_PROVIDER", in.Provider)
	in.BaseURL = getEnv("INFERENCE_BASE_URL", in.BaseURL)
	in.APIKey = getEnv("INFERENCE_API_KEY", in.APIKey)
	in.TextModel = getEnv("INFERENCE_TEXT_MODEL", in.TextModel)
	in.VisionModel = getEnv("INFERENCE_VISION_MODEL", in.VisionModel)
	in.Temperature = getEnvAsFloat32("INFERENCE_TEMPERATURE", in.Temperature)
	in.MaxTokens = getEnvAsInt("INFERENCE_MAX_TOKENS", in.MaxTokens)
	in.TextTimeout = getEnvAsDuration("INFERENCE_TEXT_TIMEOUT", in.TextTimeout)
	in.VisionTimeout = getEnvAsDuration("INFERENCE_VISION_TIMEOUT", in.VisionTimeout)
	in.ProbeTimeout = getEnvAsDuration("INFERENCE_PROBE_TIMEOUT", in.ProbeTimeout)

	c.Limits.MaxBytes = getEnvAsInt64("LIMIT_MAX_BYTES", c.Limits.MaxBytes)
	c.Limits.MaxTextPages = getEnvAsInt("LIMIT_MAX_TEXT_PAGES", c.Limits.MaxTextPages)
	c.Limits.MaxVisionPages = getEnvAsInt("LIMIT_MAX_VISION_PAGES", c.Limits.MaxVisionPages)
	c.Limits.ChunkMaxChars = getEnvAsInt("CHUNK_MAX_CHARS", c.Limits.ChunkMaxChars)

	c.Raster.Binary = getEnv("RASTER_BINARY", c.Raster.Binary)
	c.Raster.DPI = getEnvAsInt("RASTER_DPI", c.Raster.DPI)
	c.Raster.Format = getEnv("RASTER_FORMAT", c.Raster.Format)
	c.Raster.TempDir = getEnv("RASTER_TEMP_DIR", c.Raster.TempDir)

	c.Dedup.LessonKeyChars = getEnvAsInt("DEDUP_LESSON_KEY_CHARS", c.Dedup.LessonKeyChars)

	c.Database.DSN = getEnv("DB_URL", c.Database.DSN)
	c.Database.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvAsInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Database.MaxConnLifetime)
	c.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Database.DialTimeout)

	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.Workers = getEnvAsInt("WORKERS", c.Server.Workers)
	c.Server.QueueSize = getEnvAsInt("QUEUE_SIZE", c.Server.QueueSize)
	c.Server.JobTimeout = getEnvAsDuration("JOB_TIMEOUT", c.Server.JobTimeout)
	c.Server.JobRetention = getEnvAsDuration("JOB_RETENTION", c.Server.JobRetention)
	c.Server.WatchDir = getEnv("WATCH_DIR", c.Server.WatchDir)
	c.Server.WatchMode = getEnv("WATCH_MODE", c.Server.WatchMode)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch strings.ToLower(c.Inference.Provider) {
	case "ollama", "openai":
	default:
		return NewAppError("CONFIG_ERROR", "INFERENCE_PROVIDER must be ollama or openai", ErrInvalidInput)
	}
	if c.Inference.BaseURL == "" {
		return NewAppError("CONFIG_ERROR", "INFERENCE_BASE_URL is required", ErrInvalidInput)
	}
	if c.Inference.TextModel == "" || c.Inference.VisionModel == "" {
		return NewAppError("CONFIG_ERROR", "INFERENCE_TEXT_MODEL and INFERENCE_VISION_MODEL are required", ErrInvalidInput)
	}
	if c.Inference.TextTimeout <= 0 || c.Inference.VisionTimeout <= 0 {
		return NewAppError("CONFIG_ERROR", "inference timeouts must be positive", ErrInvalidInput)
	}
	if c.Limits.MaxBytes <= 0 || c.Limits.MaxTextPages <= 0 || c.Limits.MaxVisionPages <= 0 {
		return NewAppError("CONFIG_ERROR", "size and page limits must be positive", ErrInvalidInput)
	}
	if c.Limits.ChunkMaxChars <= 0 {
		return NewAppError("CONFIG_ERROR", "CHUNK_MAX_CHARS must be positive", ErrInvalidInput)
	}
	if c.Raster.DPI <= 0 {
		return NewAppError("CONFIG_ERROR", "RASTER_DPI must be positive", ErrInvalidInput)
	}
	if c.Raster.Format != "png" && c.Raster.Format != "jpeg" {
		return NewAppError("CONFIG_ERROR", "RASTER_FORMAT must be png or jpeg", ErrInvalidInput)
	}
	if c.Server.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "WORKERS must be positive", ErrInvalidInput)
	}
	if c.Server.WatchDir != "" && c.Server.WatchMode != "text" && c.Server.WatchMode != "vision" {
		return NewAppError("CONFIG_ERROR", "WATCH_MODE must be text or vision", ErrInvalidInput)
	}
	return nil
}
