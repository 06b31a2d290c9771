package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/infrawatchstack/infrawatch-insight/internal/utils"
)

// Config captures the settings required to boot the insight service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Clients   ClientsConfig   `yaml:"clients"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Logging   LoggingConfig   `yaml:"logging"`
	Rules     RulesConfig     `yaml:"rules"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// ClientsConfig groups upstream integrations.
type ClientsConfig struct {
	InfraWatch InfraWatchClientConfig `yaml:"infrawatch"`
}

// InfraWatchClientConfig configures access to the monitoring backend APIs.
type InfraWatchClientConfig struct {
	BaseURL     string        `yaml:"baseURL"`
	Token       string        `yaml:"token"`
	Timeout     time.Duration `yaml:"timeout"`
	OverviewTTL time.Duration `yaml:"overviewTTL"`
}

// LLMConfig configures the generation and embedding model endpoints.
type LLMConfig struct {
	BaseURL    string        `yaml:"baseURL"`
	Model      string        `yaml:"model"`
	EmbedModel string        `yaml:"embedModel"`
	APIKey     string        `yaml:"apiKey"`
	Timeout    time.Duration `yaml:"timeout"`
}

// RetrievalConfig controls the knowledge-base similarity strategy.
type RetrievalConfig struct {
	// Strategy is "lexical" or "vector".
	Strategy        string `yaml:"strategy"`
	KnowledgeBase   string `yaml:"knowledgeBase"`
	ContextMaxChars int    `yaml:"contextMaxChars"`
	TopK            int    `yaml:"topK"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RulesConfig controls rule-pack loading for the predictive engine.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls Redis-backed caching of expensive lookups.
type CacheConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
	AnalysisTTL time.Duration `yaml:"analysisTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("INSIGHT_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, utils.NewAppError("config.load", fmt.Sprintf("config file %s not found", path), err)
			}
			return nil, utils.NewAppError("config.load", "read config file", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, utils.NewAppError("config.load", "parse config file", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8095",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Clients: ClientsConfig{
			InfraWatch: InfraWatchClientConfig{
				Timeout:     10 * time.Second,
				OverviewTTL: 30 * time.Second,
			},
		},
		LLM: LLMConfig{
			BaseURL:    "https://generativelanguage.googleapis.com",
			Model:      "gemini-1.5-flash",
			EmbedModel: "text-embedding-004",
			Timeout:    30 * time.Second,
		},
		Retrieval: RetrievalConfig{
			Strategy:        "lexical",
			KnowledgeBase:   "data/knowledge_base.json",
			ContextMaxChars: 2000,
			TopK:            3,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Rules:   RulesConfig{Path: "configs/rules/predictive.yaml"},
		Cache: CacheConfig{
			Enabled:     false,
			DialTimeout: 2 * time.Second,
			AnalysisTTL: 2 * time.Minute,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INSIGHT_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("INSIGHT_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("INSIGHT_INFRAWATCH_BASE_URL"); v != "" {
		cfg.Clients.InfraWatch.BaseURL = v
	}
	if v := os.Getenv("INSIGHT_INFRAWATCH_TOKEN"); v != "" {
		cfg.Clients.InfraWatch.Token = v
	}
	if v := os.Getenv("INSIGHT_INFRAWATCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Clients.InfraWatch.Timeout = d
		}
	}
	if v := os.Getenv("INSIGHT_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("INSIGHT_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("INSIGHT_LLM_EMBED_MODEL"); v != "" {
		cfg.LLM.EmbedModel = v
	}
	if v := os.Getenv("INSIGHT_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("INSIGHT_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.Timeout = d
		}
	}
	if v := os.Getenv("INSIGHT_RETRIEVAL_STRATEGY"); v != "" {
		cfg.Retrieval.Strategy = strings.ToLower(v)
	}
	if v := os.Getenv("INSIGHT_KNOWLEDGE_BASE"); v != "" {
		cfg.Retrieval.KnowledgeBase = v
	}
	if v := os.Getenv("INSIGHT_CONTEXT_MAX_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retrieval.ContextMaxChars = n
		}
	}
	if v := os.Getenv("INSIGHT_RETRIEVAL_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retrieval.TopK = n
		}
	}
	if v := os.Getenv("INSIGHT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("INSIGHT_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("INSIGHT_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("INSIGHT_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("INSIGHT_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("INSIGHT_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("INSIGHT_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("INSIGHT_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("INSIGHT_CACHE_DIAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DialTimeout = d
		}
	}
	if v := os.Getenv("INSIGHT_CACHE_ANALYSIS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.AnalysisTTL = d
		}
	}
}
