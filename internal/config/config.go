package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// ErrMissing is wrapped by Require when a required key has no value.
var ErrMissing = errors.New("missing required config")

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Storage   StorageConfig
	GSC       GSCConfig
	Puller    PullerConfig
	Inference InferenceConfig
	Vector    VectorConfig
	Uploader  UploaderConfig
	Responder ResponderConfig
	Dashboard DashboardConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
	MCP      bool
}

type LogConfig struct {
	Level  string
	Format string
}

type StorageConfig struct {
	Driver           string
	Container        string
	ConnectionString string
	Project          string
	Region           string
	Dir              string
	DataDir          string
}

type GSCConfig struct {
	SiteURL         string
	CredentialsFile string
}

type PullerConfig struct {
	Window     string
	RowLimit   int
	Dimensions string
	Schedule   string
	Encoding   string
}

type InferenceConfig struct {
	Backend       string
	BaseURL       string
	APIKey        string
	OllamaURL     string
	EmbedModel    string
	GenerateModel string
	Timeout       string
	MaxAttempts   int
}

// TimeoutDuration parses Timeout, falling back to 60s on bad input.
func (c InferenceConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

type VectorConfig struct {
	Driver     string
	URL        string
	APIKey     string
	Collection string
}

type UploaderConfig struct {
	Object       string
	BatchSize    int
	MinTextChars int
	MinWords     int
}

type ResponderConfig struct {
	Mode         string
	ContextChars int
	TopK         int
}

type DashboardConfig struct {
	ContainerURL string
	SASToken     string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Driver:    "azure",
			Container: "gsc-data",
			Dir:       defaultDataDir(),
			DataDir:   defaultDataDir(),
		},
		Puller: PullerConfig{
			Window:     "previous-month",
			RowLimit:   25000,
			Dimensions: "page",
			Schedule:   "0 0 6 1 * *",
			Encoding:   "compact",
		},
		Inference: InferenceConfig{
			Backend:       "huggingface",
			BaseURL:       "https://api-inference.huggingface.co",
			OllamaURL:     "http://localhost:11434",
			EmbedModel:    "sentence-transformers/all-MiniLM-L6-v2",
			GenerateModel: "google/flan-t5-small",
			Timeout:       "60s",
			MaxAttempts:   1,
		},
		Vector: VectorConfig{
			Driver:     "qdrant",
			Collection: "gsc-chunks",
		},
		Uploader: UploaderConfig{
			Object:       "reportTest.json",
			BatchSize:    50,
			MinTextChars: 10,
			MinWords:     3,
		},
		Responder: ResponderConfig{
			Mode:         "scan",
			ContextChars: 3000,
			TopK:         5,
		},
	}
}

// Load reads configuration from the JSON config file, a .env file in the
// working directory, and environment variables, in increasing priority.
//
// The config file lives at $XDG_CONFIG_HOME/seodata/config.json. Secrets are
// never read from it and must be provided via environment variables.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("Could not parse .env file")
	}
	return loadWith(newFileBackend(configFilePath()), os.Getenv)
}

func loadWith(b ConfigBackend, getenv func(string) string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg, getenv)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Uploader.BatchSize <= 0 {
		return fmt.Errorf("uploader.batch_size must be positive, got %d", c.Uploader.BatchSize)
	}
	if c.Inference.MaxAttempts < 1 {
		return fmt.Errorf("inference.max_attempts must be at least 1, got %d", c.Inference.MaxAttempts)
	}
	return nil
}

// Require checks that every named key has a non-empty value and returns an
// error wrapping ErrMissing for the first one that does not.
func (c Config) Require(keys ...string) error {
	for _, key := range keys {
		s, ok := lookupSpec(key)
		if !ok {
			return fmt.Errorf("unknown config key: %q", key)
		}
		v := s.extract(c)
		if str, isStr := v.(string); isStr && str == "" {
			return fmt.Errorf("%w: %s. Set it via environment variable %s", ErrMissing, key, s.env)
		}
	}
	return nil
}
