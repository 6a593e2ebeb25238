package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Duration handles JSON and environment decoding of time.Duration values.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

type OpenAIConfig struct {
	APIKey      string  `json:"api_key" envconfig:"OPENAI_API_KEY"`
	Model       string  `json:"model" envconfig:"OPENAI_MODEL"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

type GeminiConfig struct {
	Binary string `json:"binary" envconfig:"GEMINI_BINARY"`
	Model  string `json:"model" envconfig:"GEMINI_MODEL"`
	APIKey string `json:"api_key" envconfig:"GEMINI_API_KEY"`
}

type TranslationConfig struct {
	MaxRetries     int      `json:"max_retries"`
	RetryDelay     Duration `json:"retry_delay"`
	RequestTimeout Duration `json:"request_timeout"`
	SupportedLangs []string `json:"supported_languages"`
}

type AppConfig struct {
	StateDir  string `json:"state_dir" envconfig:"STATE_DIR"`
	OutputDir string `json:"output_dir" envconfig:"OUTPUT_DIR"`
}

type StatusConfig struct {
	ReadTimeout  Duration `json:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout"`
}

type Config struct {
	OpenAI      OpenAIConfig      `json:"openai"`
	Gemini      GeminiConfig      `json:"gemini"`
	Translation TranslationConfig `json:"translation"`
	App         AppConfig         `json:"app"`
	Status      StatusConfig      `json:"status"`
}

func New() *Config {
	return &Config{
		OpenAI: OpenAIConfig{
			Model:       "gpt-4o",
			MaxTokens:   2048,
			Temperature: 0.4,
		},
		Gemini: GeminiConfig{
			Binary: "gemini",
			Model:  "gemini-2.5-flash",
		},
		Translation: TranslationConfig{
			MaxRetries:     3,
			RetryDelay:     Duration{2 * time.Second},
			RequestTimeout: Duration{60 * time.Second},
			SupportedLangs: []string{
				"en", "es", "fr", "de", "it", "pt", "ru", "ja", "ko", "zh",
				"ar", "fa", "he", "hi", "tr", "pl", "nl", "sv", "da", "no",
			},
		},
		App: AppConfig{
			StateDir:  "state",
			OutputDir: "output",
		},
		Status: StatusConfig{
			ReadTimeout:  Duration{30 * time.Second},
			WriteTimeout: Duration{30 * time.Second},
		},
	}
}

func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Load resolves configuration with priority: command line flags (handled by
// the CLI layer), environment variables, configuration file, defaults.
func Load(configPath string) (*Config, error) {
	cfg := New()

	if err := ensureConfigFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to ensure config file: %w", err)
	}

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config from file: %w", err)
	}

	// A .env in the working directory is optional.
	_ = godotenv.Load()

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return cfg, nil
}

// ensureConfigFile creates a default config file if none exists yet.
func ensureConfigFile(configPath string, defaults *Config) error {
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return defaults.SaveToFile(configPath)
}

// GetConfigPath returns the default config file location, beside the
// executable when possible.
func GetConfigPath() string {
	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		return filepath.Join(execDir, "config.json")
	}

	if pwd, err := os.Getwd(); err == nil {
		return filepath.Join(pwd, "config.json")
	}

	return "config.json"
}
