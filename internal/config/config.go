package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/apresai/pdfcast/internal/script"
)

// Config holds application-wide configuration populated from the
// environment.
type Config struct {
	ServerURL string
	Listen    string
	DataDir   string

	Language    script.Language
	ScriptModel string

	S3Bucket     string
	S3Prefix     string
	DynamoTable  string // MCP job records; empty keeps them in memory
	AWSRegion    string
	SecretPrefix string // e.g. "/pdfcast/"

	AnthropicAPIKey       string
	GoogleCredentialsJSON string // from Secrets Manager; empty uses ADC

	LogLevel    string
	LogFormat   string
	MaxUploadMB int
}

// Defaults.
const (
	DefaultServerURL   = "http://localhost:5000"
	DefaultListen      = ":5000"
	DefaultScriptModel = "haiku"
	DefaultRegion      = "us-east-1"
	DefaultMaxUploadMB = 50
)

// Load reads a .env file from the working directory if present, then the
// environment. Values already set in the environment win over .env.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching
// .env.
func FromEnv() (*Config, error) {
	cfg := &Config{
		ServerURL:       getEnv("PDFCAST_SERVER_URL", DefaultServerURL),
		Listen:          getEnv("PDFCAST_LISTEN", DefaultListen),
		DataDir:         getEnv("PDFCAST_DATA_DIR", defaultDataDir()),
		Language:        script.Language(strings.ToLower(getEnv("PDFCAST_LANGUAGE", string(script.DefaultLanguage)))),
		ScriptModel:     getEnv("PDFCAST_SCRIPT_MODEL", DefaultScriptModel),
		S3Bucket:        os.Getenv("PDFCAST_S3_BUCKET"),
		S3Prefix:        os.Getenv("PDFCAST_S3_PREFIX"),
		DynamoTable:     os.Getenv("PDFCAST_DYNAMODB_TABLE"),
		AWSRegion:       getEnv("AWS_REGION", DefaultRegion),
		SecretPrefix:    os.Getenv("PDFCAST_SECRET_PREFIX"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		LogLevel:        strings.ToLower(getEnv("PDFCAST_LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("PDFCAST_LOG_FORMAT", "json")),
		MaxUploadMB:     DefaultMaxUploadMB,
	}

	if v := os.Getenv("PDFCAST_MAX_UPLOAD_MB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("PDFCAST_MAX_UPLOAD_MB: %q is not a number", v)
		}
		cfg.MaxUploadMB = n
	}
	return cfg, nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.ServerURL); err != nil {
		return fmt.Errorf("server URL %q is invalid: %w", c.ServerURL, err)
	}
	if script.ParseLanguage(string(c.Language)) != c.Language {
		return fmt.Errorf("language %q is not supported (choose from %s)", c.Language, languageCodes())
	}
	if !validModel(c.ScriptModel) {
		return fmt.Errorf("script model %q is not supported (choose from %s)", c.ScriptModel, strings.Join(script.ModelNames(), ", "))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level %q must be debug, info, warn or error", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log format %q must be json or text", c.LogFormat)
	}
	if c.MaxUploadMB < 1 || c.MaxUploadMB > 500 {
		return errors.New("max upload must be between 1 and 500 MB")
	}
	if c.S3Bucket == "" && c.DataDir == "" {
		return errors.New("a data dir or an S3 bucket is required")
	}
	return nil
}

// MaxUploadBytes returns the upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// LogPath is where the interactive studio writes its log.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "pdfcast.log")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".pdfcast")
}

func validModel(m string) bool {
	for _, name := range script.ModelNames() {
		if name == m {
			return true
		}
	}
	return false
}

func languageCodes() string {
	var codes []string
	for _, l := range script.Languages() {
		codes = append(codes, string(l.Code))
	}
	return strings.Join(codes, ", ")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
