package config

const (
	defaultStorageProvider = "sqlite"
	defaultStorageScope    = "remem"

	defaultBankProvider   = "sqlitevec"
	defaultBankCollection = "remem_memories"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768

	defaultLLMProvider = "ollama"
	defaultLLMTarget   = "http://localhost:11434"
	defaultLLMModel    = "llama3.2"

	defaultRerankerTopK         = 5
	defaultRerankerTopM         = 3
	defaultRerankerTemperature  = 1.0
	defaultRerankerLearningRate = 0.01
	defaultRerankerBaseline     = 0.2

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "remem.memory.events"

	defaultAPIListen       = ":8081"
	defaultClientAPITarget = "http://localhost:8081"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider: defaultStorageProvider,
			Scope:    defaultStorageScope,
		},
		Bank: BankConfig{
			Provider:   defaultBankProvider,
			Collection: defaultBankCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		LLM: LLMConfig{
			Provider: defaultLLMProvider,
			Target:   defaultLLMTarget,
			Model:    defaultLLMModel,
		},
		Reranker: RerankerConfig{
			TopK:         defaultRerankerTopK,
			TopM:         defaultRerankerTopM,
			Temperature:  defaultRerankerTemperature,
			LearningRate: defaultRerankerLearningRate,
			Baseline:     defaultRerankerBaseline,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
	}
}
