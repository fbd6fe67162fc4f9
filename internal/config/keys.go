package config

import (
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	aliases []string // legacy variable names, consulted after env
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SEODATA_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "SEODATA_SERVER_API_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "server.mcp", typ: kBool, env: "SEODATA_SERVER_MCP",
		apply:   func(cfg *Config, v any) { cfg.Server.MCP = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.MCP },
	},
	{
		key: "log.level", typ: kString, env: "SEODATA_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "SEODATA_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "storage.driver", typ: kString, env: "SEODATA_STORAGE_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Storage.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Driver },
	},
	{
		key: "storage.container", typ: kString, env: "SEODATA_STORAGE_CONTAINER",
		apply:   func(cfg *Config, v any) { cfg.Storage.Container = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Container },
	},
	{
		key: "storage.connection_string", typ: kString, env: "SEODATA_STORAGE_CONNECTION_STRING",
		aliases: []string{"AZURE_STORAGE_CONNECTION_STRING", "AzureWebJobsStorage"},
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Storage.ConnectionString = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.ConnectionString },
	},
	{
		key: "storage.project", typ: kString, env: "SEODATA_STORAGE_PROJECT",
		apply:   func(cfg *Config, v any) { cfg.Storage.Project = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Project },
	},
	{
		key: "storage.region", typ: kString, env: "SEODATA_STORAGE_REGION",
		apply:   func(cfg *Config, v any) { cfg.Storage.Region = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Region },
	},
	{
		key: "storage.dir", typ: kString, env: "SEODATA_STORAGE_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Dir },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SEODATA_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "gsc.site_url", typ: kString, env: "SEODATA_GSC_SITE_URL",
		apply:   func(cfg *Config, v any) { cfg.GSC.SiteURL = v.(string) },
		extract: func(cfg Config) any { return cfg.GSC.SiteURL },
	},
	{
		key: "gsc.credentials_file", typ: kString, env: "SEODATA_GSC_CREDENTIALS_FILE",
		aliases: []string{"GOOGLE_APPLICATION_CREDENTIALS"},
		apply:   func(cfg *Config, v any) { cfg.GSC.CredentialsFile = v.(string) },
		extract: func(cfg Config) any { return cfg.GSC.CredentialsFile },
	},
	{
		key: "puller.window", typ: kString, env: "SEODATA_PULLER_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.Puller.Window = v.(string) },
		extract: func(cfg Config) any { return cfg.Puller.Window },
	},
	{
		key: "puller.row_limit", typ: kInt, env: "SEODATA_PULLER_ROW_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Puller.RowLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Puller.RowLimit },
	},
	{
		key: "puller.dimensions", typ: kString, env: "SEODATA_PULLER_DIMENSIONS",
		apply:   func(cfg *Config, v any) { cfg.Puller.Dimensions = v.(string) },
		extract: func(cfg Config) any { return cfg.Puller.Dimensions },
	},
	{
		key: "puller.schedule", typ: kString, env: "SEODATA_PULLER_SCHEDULE",
		apply:   func(cfg *Config, v any) { cfg.Puller.Schedule = v.(string) },
		extract: func(cfg Config) any { return cfg.Puller.Schedule },
	},
	{
		key: "puller.encoding", typ: kString, env: "SEODATA_PULLER_ENCODING",
		apply:   func(cfg *Config, v any) { cfg.Puller.Encoding = v.(string) },
		extract: func(cfg Config) any { return cfg.Puller.Encoding },
	},
	{
		key: "inference.backend", typ: kString, env: "SEODATA_INFERENCE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Inference.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.Backend },
	},
	{
		key: "inference.base_url", typ: kString, env: "SEODATA_INFERENCE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Inference.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.BaseURL },
	},
	{
		key: "inference.api_key", typ: kString, env: "SEODATA_INFERENCE_API_KEY",
		aliases: []string{"HUGGINGFACE_API_KEY"},
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Inference.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.APIKey },
	},
	{
		key: "inference.ollama_url", typ: kString, env: "SEODATA_INFERENCE_OLLAMA_URL",
		apply:   func(cfg *Config, v any) { cfg.Inference.OllamaURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.OllamaURL },
	},
	{
		key: "inference.embed_model", typ: kString, env: "SEODATA_INFERENCE_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Inference.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.EmbedModel },
	},
	{
		key: "inference.generate_model", typ: kString, env: "SEODATA_INFERENCE_GENERATE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Inference.GenerateModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.GenerateModel },
	},
	{
		key: "inference.timeout", typ: kString, env: "SEODATA_INFERENCE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Inference.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.Timeout },
	},
	{
		key: "inference.max_attempts", typ: kInt, env: "SEODATA_INFERENCE_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Inference.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Inference.MaxAttempts },
	},
	{
		key: "vector.driver", typ: kString, env: "SEODATA_VECTOR_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Vector.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Vector.Driver },
	},
	{
		key: "vector.url", typ: kString, env: "SEODATA_VECTOR_URL",
		aliases: []string{"QDRANT_URL"},
		apply:   func(cfg *Config, v any) { cfg.Vector.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Vector.URL },
	},
	{
		key: "vector.api_key", typ: kString, env: "SEODATA_VECTOR_API_KEY",
		aliases: []string{"QDRANT_API_KEY"},
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Vector.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Vector.APIKey },
	},
	{
		key: "vector.collection", typ: kString, env: "SEODATA_VECTOR_COLLECTION",
		apply:   func(cfg *Config, v any) { cfg.Vector.Collection = v.(string) },
		extract: func(cfg Config) any { return cfg.Vector.Collection },
	},
	{
		key: "uploader.object", typ: kString, env: "SEODATA_UPLOADER_OBJECT",
		apply:   func(cfg *Config, v any) { cfg.Uploader.Object = v.(string) },
		extract: func(cfg Config) any { return cfg.Uploader.Object },
	},
	{
		key: "uploader.batch_size", typ: kInt, env: "SEODATA_UPLOADER_BATCH_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Uploader.BatchSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Uploader.BatchSize },
	},
	{
		key: "uploader.min_text_chars", typ: kInt, env: "SEODATA_UPLOADER_MIN_TEXT_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Uploader.MinTextChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Uploader.MinTextChars },
	},
	{
		key: "uploader.min_words", typ: kInt, env: "SEODATA_UPLOADER_MIN_WORDS",
		apply:   func(cfg *Config, v any) { cfg.Uploader.MinWords = v.(int) },
		extract: func(cfg Config) any { return cfg.Uploader.MinWords },
	},
	{
		key: "responder.mode", typ: kString, env: "SEODATA_RESPONDER_MODE",
		apply:   func(cfg *Config, v any) { cfg.Responder.Mode = v.(string) },
		extract: func(cfg Config) any { return cfg.Responder.Mode },
	},
	{
		key: "responder.context_chars", typ: kInt, env: "SEODATA_RESPONDER_CONTEXT_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Responder.ContextChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Responder.ContextChars },
	},
	{
		key: "responder.top_k", typ: kInt, env: "SEODATA_RESPONDER_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Responder.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Responder.TopK },
	},
	{
		key: "dashboard.container_url", typ: kString, env: "SEODATA_DASHBOARD_CONTAINER_URL",
		aliases: []string{"REACT_APP_CONTAINER_URL"},
		apply:   func(cfg *Config, v any) { cfg.Dashboard.ContainerURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Dashboard.ContainerURL },
	},
	{
		key: "dashboard.sas_token", typ: kString, env: "SEODATA_DASHBOARD_SAS_TOKEN",
		aliases: []string{"REACT_APP_SAS_TOKEN"},
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Dashboard.SASToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Dashboard.SASToken },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					log.WithError(err).WithField("key", s.key).Warn("Could not parse bool from config file, using default value")
				}
			}
		}
	}
	return nil
}

// envValue returns the first non-empty value among the spec's env var and aliases.
func (s keySpec) envValue(getenv func(string) string) (string, string) {
	if raw := getenv(s.env); raw != "" {
		return s.env, raw
	}
	for _, alias := range s.aliases {
		if raw := getenv(alias); raw != "" {
			return alias, raw
		}
	}
	return "", ""
}

func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	for _, s := range specs {
		name, raw := s.envValue(getenv)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				log.WithError(err).WithField("env", name).Warn("Could not parse integer from env var, using default value")
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				log.WithError(err).WithField("env", name).Warn("Could not parse bool from env var, using default value")
			}
		}
	}
}
