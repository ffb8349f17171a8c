package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/remem/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the REMEM_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (REMEM_API_LISTEN, REMEM_STORAGE_PROVIDER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: REMEM_API_LISTEN, REMEM_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix("REMEM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes a Config from the viper precedence chain.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Storage: StorageConfig{
			Provider:    v.GetString("storage.provider"),
			Scope:       v.GetString("storage.scope"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		Bank: BankConfig{
			Provider:   v.GetString("bank.provider"),
			SQLitePath: v.GetString("bank.sqlite_path"),
			Target:     v.GetString("bank.target"),
			Host:       v.GetString("bank.host"),
			Port:       v.GetInt("bank.port"),
			Collection: v.GetString("bank.collection"),
		},
		Embedding: EmbeddingConfig{
			Provider:   v.GetString("embedding.provider"),
			Target:     v.GetString("embedding.target"),
			Model:      v.GetString("embedding.model"),
			Dimensions: v.GetUint("embedding.dimensions"),
		},
		LLM: LLMConfig{
			Provider: v.GetString("llm.provider"),
			Model:    v.GetString("llm.model"),
			APIKey:   v.GetString("llm.api_key"),
			Target:   v.GetString("llm.target"),
		},
		Reranker: RerankerConfig{
			TopK:         v.GetInt("reranker.top_k"),
			TopM:         v.GetInt("reranker.top_m"),
			Temperature:  v.GetFloat64("reranker.temperature"),
			LearningRate: v.GetFloat64("reranker.learning_rate"),
			Baseline:     v.GetFloat64("reranker.baseline"),
		},
		Events: EventsConfig{
			Provider: v.GetString("events.provider"),
			Brokers:  v.GetStringSlice("events.brokers"),
			Topic:    v.GetString("events.topic"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
		Client: ClientConfig{
			APITarget: v.GetString("client.api_target"),
		},
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.provider", d.Storage.Provider)
	v.SetDefault("storage.scope", d.Storage.Scope)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Bank
	v.SetDefault("bank.provider", d.Bank.Provider)
	v.SetDefault("bank.sqlite_path", d.Bank.SQLitePath)
	v.SetDefault("bank.target", d.Bank.Target)
	v.SetDefault("bank.host", d.Bank.Host)
	v.SetDefault("bank.port", d.Bank.Port)
	v.SetDefault("bank.collection", d.Bank.Collection)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	// LLM
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.target", d.LLM.Target)

	// Reranker
	v.SetDefault("reranker.top_k", d.Reranker.TopK)
	v.SetDefault("reranker.top_m", d.Reranker.TopM)
	v.SetDefault("reranker.temperature", d.Reranker.Temperature)
	v.SetDefault("reranker.learning_rate", d.Reranker.LearningRate)
	v.SetDefault("reranker.baseline", d.Reranker.Baseline)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Client
	v.SetDefault("client.api_target", d.Client.APITarget)
}
