package common

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/lab-extractor/constants"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	OCR        OCRConfig
	Fetch      FetchConfig
	Extraction ExtractionConfig
	LLM        LLMConfig
	Log        LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "postgres" | "sqlite"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string
	GRPCAddr       string
	APIKey         string
	MaxUploadBytes int64
	RequestTimeout time.Duration
	Mode           string
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract          string
	Pdftoppm           string
	Language           string
	TessdataDir        string
	DPI                int
	PSM                int
	OEM                int
	LargeFileThreshold int64
	PageWorkers        int
	MaxPages           int
	HeicConverter      string
	TempDir            string
}

// FetchConfig controls remote document downloads.
type FetchConfig struct {
	DownloadTimeout     time.Duration
	HeadTimeout         time.Duration
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
}

// ExtractionConfig selects the parameter extraction strategy.
type ExtractionConfig struct {
	Strategy         string
	Provider         string
	CatalogPath      string
	KeywordThreshold int
	CatalogCacheSize int
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	OpenAIModel   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GeminiModel   string
	GeminiAPIKey  string
	Temperature   float32
	MaxTokens     int
	Timeout       time.Duration
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Database: DatabaseConfig{
			Driver:           strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":8000"),
			GRPCAddr:       getEnv("GRPC_ADDR", ":8081"),
			APIKey:         getEnv("API_KEY", ""),
			MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", constants.MaxUploadBytesDefault),
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 6*time.Minute),
			Mode:           getEnv("MODE", "prod"),
		},
		OCR: OCRConfig{
			Tesseract:          getEnv("TESSERACT_BIN", "tesseract"),
			Pdftoppm:           getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Language:           getEnv("OCR_LANG", "eng"),
			TessdataDir:        getEnv("TESSDATA_PREFIX", ""),
			DPI:                getEnvAsInt("OCR_DPI", 150),
			PSM:                getEnvAsInt("OCR_PSM", 6),
			OEM:                getEnvAsInt("OCR_OEM", 3),
			LargeFileThreshold: getEnvAsInt64("LARGE_FILE_THRESHOLD", constants.LargeFileThresholdDefault),
			PageWorkers:        getEnvAsInt("OCR_PAGE_WORKERS", 4),
			MaxPages:           getEnvAsInt("OCR_MAX_PAGES", 0),
			HeicConverter:      getEnv("HEIC_CONVERTER", "magick"),
			TempDir:            getEnv("OCR_TEMP_DIR", ""),
		},
		Fetch: FetchConfig{
			DownloadTimeout:     getEnvAsDuration("DOWNLOAD_TIMEOUT", 360*time.Second),
			HeadTimeout:         getEnvAsDuration("HEAD_TIMEOUT", 10*time.Second),
			CloudinaryCloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
			CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
			CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),
		},
		Extraction: ExtractionConfig{
			Strategy:         strings.ToLower(getEnv("EXTRACTION_STRATEGY", constants.StrategyRules)),
			Provider:         strings.ToLower(getEnv("AI_PROVIDER", constants.ProviderOpenAI)),
			CatalogPath:      getEnv("CATALOG_PATH", ""),
			KeywordThreshold: getEnvAsInt("KEYWORD_THRESHOLD", 3),
			CatalogCacheSize: getEnvAsInt("CATALOG_CACHE_SIZE", 512),
		},
		LLM: LLMConfig{
			OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
			Temperature:   getEnvAsFloat32("LLM_TEMPERATURE", 0.1),
			MaxTokens:     getEnvAsInt("LLM_MAX_TOKENS", 1000),
			Timeout:       getEnvAsDuration("LLM_TIMEOUT", 45*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
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

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
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
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return NewAppError("CONFIG_ERROR", "DB_URL is required for the postgres driver", ErrInvalidInput)
		}
	case "sqlite":
		if c.Database.DSN == "" {
			c.Database.DSN = "file:lab-extractor.db?_pragma=foreign_keys(1)"
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown DB_DRIVER %q", c.Database.Driver), ErrInvalidInput)
	}
	switch c.Extraction.Strategy {
	case constants.StrategyRules, constants.StrategyAI:
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown EXTRACTION_STRATEGY %q", c.Extraction.Strategy), ErrInvalidInput)
	}
	switch c.Extraction.Provider {
	case constants.ProviderOpenAI, constants.ProviderGemini:
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown AI_PROVIDER %q", c.Extraction.Provider), ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.OCR.DPI <= 0 {
		return NewAppError("CONFIG_ERROR", "OCR_DPI must be positive", ErrInvalidInput)
	}
	return nil
}

// AIConfigured reports whether the selected AI provider has credentials.
func (c *Config) AIConfigured() bool {
	if c.Extraction.Strategy != constants.StrategyAI {
		return false
	}
	switch c.Extraction.Provider {
	case constants.ProviderGemini:
		return c.LLM.GeminiAPIKey != ""
	default:
		return c.LLM.OpenAIAPIKey != ""
	}
}

// NewLogger builds the process logger from LogConfig.
func NewLogger(cfg LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
