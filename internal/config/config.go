package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr    string `yaml:"listen_addr"`
	VisionBackend string `yaml:"vision_backend"`

	GoogleAPIKey   string `yaml:"google_api_key"`
	GeminiModel    string `yaml:"gemini_model"`
	GeminiEndpoint string `yaml:"gemini_endpoint"`

	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIModel   string `yaml:"openai_model"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	ClaudeAPIKey string `yaml:"claude_api_key"`
	ClaudeModel  string `yaml:"claude_model"`

	OllamaHost  string `yaml:"ollama_host"`
	OllamaModel string `yaml:"ollama_model"`

	MaxUploadBytes     int64         `yaml:"max_upload_bytes"`
	MaxImagePixels     int64         `yaml:"max_image_pixels"`
	AnalysisTimeout    time.Duration `yaml:"analysis_timeout"`
	MaxInFlight        int64         `yaml:"max_in_flight"`
	PreviewMaxDim      int           `yaml:"preview_max_dim"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

func defaults() *Config {
	return &Config{
		ListenAddr:     ":8080",
		VisionBackend:  "gemini",
		GeminiModel:    "gemini-3-flash-preview",
		OpenAIModel:    "gpt-4o",
		ClaudeModel:    "claude-opus-4-6",
		OllamaHost:     "http://localhost:11434",
		OllamaModel:    "llava",
		MaxUploadBytes: 20 * 1024 * 1024,
		MaxImagePixels: 40_000_000,
		MaxInFlight:    1,
		PreviewMaxDim:  800,
		LogLevel:       "info",
	}
}

// Load builds the process configuration. Sources are applied in increasing
// precedence: defaults, the YAML file named by CONFIG_FILE, a .env file in the
// working directory, then the process environment. Variables already set in
// the environment are never overwritten by .env.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.mergeEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() error {
	c.ListenAddr = getEnv("LISTEN_ADDR", c.ListenAddr)
	c.VisionBackend = getEnv("VISION_BACKEND", c.VisionBackend)
	c.GoogleAPIKey = getEnv("GOOGLE_API_KEY", c.GoogleAPIKey)
	c.GeminiModel = getEnv("GEMINI_MODEL", c.GeminiModel)
	c.GeminiEndpoint = getEnv("GEMINI_ENDPOINT", c.GeminiEndpoint)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIModel = getEnv("OPENAI_MODEL", c.OpenAIModel)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.ClaudeAPIKey = getEnv("CLAUDE_API_KEY", c.ClaudeAPIKey)
	c.ClaudeModel = getEnv("CLAUDE_MODEL", c.ClaudeModel)
	c.OllamaHost = getEnv("OLLAMA_HOST", c.OllamaHost)
	c.OllamaModel = getEnv("OLLAMA_MODEL", c.OllamaModel)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)

	if v, ok := os.LookupEnv("CORS_ALLOWED_ORIGINS"); ok {
		c.CORSAllowedOrigins = splitList(v)
	}

	var err error
	if c.MaxUploadBytes, err = getEnvInt("MAX_UPLOAD_BYTES", c.MaxUploadBytes); err != nil {
		return err
	}
	if c.MaxImagePixels, err = getEnvInt("MAX_IMAGE_PIXELS", c.MaxImagePixels); err != nil {
		return err
	}
	if c.MaxInFlight, err = getEnvInt("MAX_IN_FLIGHT", c.MaxInFlight); err != nil {
		return err
	}
	dim, err := getEnvInt("PREVIEW_MAX_DIM", int64(c.PreviewMaxDim))
	if err != nil {
		return err
	}
	c.PreviewMaxDim = int(dim)

	if v, ok := os.LookupEnv("ANALYSIS_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid ANALYSIS_TIMEOUT %q: %w", v, err)
		}
		c.AnalysisTimeout = d
	}

	if c.MaxImagePixels < 1 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be at least 1, got %d", c.MaxImagePixels)
	}
	if c.MaxInFlight < 1 {
		return fmt.Errorf("MAX_IN_FLIGHT must be at least 1, got %d", c.MaxInFlight)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int64) (int64, error) {
	val, exists := os.LookupEnv(key)
	if !exists || val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
