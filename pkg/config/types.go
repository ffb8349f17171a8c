package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent remem configuration stored as config.toml
// in the .remem/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version   int             `toml:"version"`
	Storage   StorageConfig   `toml:"storage"`
	Bank      BankConfig      `toml:"bank"`
	Embedding EmbeddingConfig `toml:"embedding"`
	LLM       LLMConfig       `toml:"llm"`
	Reranker  RerankerConfig  `toml:"reranker"`
	Events    EventsConfig    `toml:"events"`
	API       APIConfig       `toml:"api"`
	Client    ClientConfig    `toml:"client"`
}

// StorageConfig holds key-value store settings for weights and buffers.
type StorageConfig struct {
	Provider    string `toml:"provider,omitempty"`
	Scope       string `toml:"scope,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// BankConfig holds memory bank (vector search) settings.
type BankConfig struct {
	Provider   string `toml:"provider,omitempty"`
	SQLitePath string `toml:"sqlite_path,omitempty"`
	Target     string `toml:"target,omitempty"`
	Host       string `toml:"host,omitempty"`
	Port       int    `toml:"port,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// LLMConfig holds settings for the model used by reflection and
// consolidation.
type LLMConfig struct {
	Provider string `toml:"provider,omitempty"`
	Model    string `toml:"model,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
	Target   string `toml:"target,omitempty"`
}

// RerankerConfig holds the learned reranker's hyperparameters.
type RerankerConfig struct {
	TopK         int     `toml:"top_k,omitempty"`
	TopM         int     `toml:"top_m,omitempty"`
	Temperature  float64 `toml:"temperature,omitempty"`
	LearningRate float64 `toml:"learning_rate,omitempty"`
	Baseline     float64 `toml:"baseline,omitempty"`
}

// EventsConfig holds event stream publisher settings.
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// remem server (e.g. remem chat). Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.provider": {
		get: func(c *Config) string { return c.Storage.Provider },
		set: func(c *Config, v string) error { c.Storage.Provider = v; return nil },
	},
	"storage.scope": {
		get: func(c *Config) string { return c.Storage.Scope },
		set: func(c *Config, v string) error { c.Storage.Scope = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"bank.provider": {
		get: func(c *Config) string { return c.Bank.Provider },
		set: func(c *Config, v string) error { c.Bank.Provider = v; return nil },
	},
	"bank.sqlite_path": {
		get: func(c *Config) string { return c.Bank.SQLitePath },
		set: func(c *Config, v string) error { c.Bank.SQLitePath = v; return nil },
	},
	"bank.target": {
		get: func(c *Config) string { return c.Bank.Target },
		set: func(c *Config, v string) error { c.Bank.Target = v; return nil },
	},
	"bank.host": {
		get: func(c *Config) string { return c.Bank.Host },
		set: func(c *Config, v string) error { c.Bank.Host = v; return nil },
	},
	"bank.port": {
		get: func(c *Config) string {
			if c.Bank.Port == 0 {
				return ""
			}
			return strconv.Itoa(c.Bank.Port)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for bank.port: %w", err)
			}
			c.Bank.Port = n
			return nil
		},
	},
	"bank.collection": {
		get: func(c *Config) string { return c.Bank.Collection },
		set: func(c *Config, v string) error { c.Bank.Collection = v; return nil },
	},
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"llm.provider": {
		get: func(c *Config) string { return c.LLM.Provider },
		set: func(c *Config, v string) error { c.LLM.Provider = v; return nil },
	},
	"llm.model": {
		get: func(c *Config) string { return c.LLM.Model },
		set: func(c *Config, v string) error { c.LLM.Model = v; return nil },
	},
	"llm.api_key": {
		get: func(c *Config) string { return c.LLM.APIKey },
		set: func(c *Config, v string) error { c.LLM.APIKey = v; return nil },
	},
	"llm.target": {
		get: func(c *Config) string { return c.LLM.Target },
		set: func(c *Config, v string) error { c.LLM.Target = v; return nil },
	},
	"reranker.top_k": {
		get: func(c *Config) string { return intKey(c.Reranker.TopK) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for reranker.top_k: %w", err)
			}
			c.Reranker.TopK = n
			return nil
		},
	},
	"reranker.top_m": {
		get: func(c *Config) string { return intKey(c.Reranker.TopM) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for reranker.top_m: %w", err)
			}
			c.Reranker.TopM = n
			return nil
		},
	},
	"reranker.temperature": {
		get: func(c *Config) string { return floatKey(c.Reranker.Temperature) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for reranker.temperature: %w", err)
			}
			c.Reranker.Temperature = f
			return nil
		},
	},
	"reranker.learning_rate": {
		get: func(c *Config) string { return floatKey(c.Reranker.LearningRate) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for reranker.learning_rate: %w", err)
			}
			c.Reranker.LearningRate = f
			return nil
		},
	},
	"reranker.baseline": {
		get: func(c *Config) string { return floatKey(c.Reranker.Baseline) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for reranker.baseline: %w", err)
			}
			c.Reranker.Baseline = f
			return nil
		},
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error { c.Events.Provider = v; return nil },
	},
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.Events.Brokers = splitBrokers(v)
			return nil
		},
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
}

func intKey(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func floatKey(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func splitBrokers(v string) []string {
	parts := strings.Split(v, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}
