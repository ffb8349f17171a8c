// Package servecmder provides the serve command for running the remem API server.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/remem/api"
	"github.com/papercomputeco/remem/cmd/remem/sqlitepath"
	"github.com/papercomputeco/remem/pkg/bank"
	bankchroma "github.com/papercomputeco/remem/pkg/bank/chroma"
	bankmem "github.com/papercomputeco/remem/pkg/bank/inmemory"
	bankqdrant "github.com/papercomputeco/remem/pkg/bank/qdrant"
	banksqlitevec "github.com/papercomputeco/remem/pkg/bank/sqlitevec"
	"github.com/papercomputeco/remem/pkg/bufferstore"
	"github.com/papercomputeco/remem/pkg/config"
	"github.com/papercomputeco/remem/pkg/consolidation"
	"github.com/papercomputeco/remem/pkg/credentials"
	"github.com/papercomputeco/remem/pkg/dotdir"
	"github.com/papercomputeco/remem/pkg/embeddings"
	embedmock "github.com/papercomputeco/remem/pkg/embeddings/mock"
	embedollama "github.com/papercomputeco/remem/pkg/embeddings/ollama"
	"github.com/papercomputeco/remem/pkg/eventstream"
	eventkafka "github.com/papercomputeco/remem/pkg/eventstream/kafka"
	eventnop "github.com/papercomputeco/remem/pkg/eventstream/nop"
	"github.com/papercomputeco/remem/pkg/kv"
	kvinmemory "github.com/papercomputeco/remem/pkg/kv/inmemory"
	kvpostgres "github.com/papercomputeco/remem/pkg/kv/postgres"
	kvsqlite "github.com/papercomputeco/remem/pkg/kv/sqlite"
	"github.com/papercomputeco/remem/pkg/llm"
	"github.com/papercomputeco/remem/pkg/logger"
	"github.com/papercomputeco/remem/pkg/reflection"
	"github.com/papercomputeco/remem/pkg/reranker"
	"github.com/papercomputeco/remem/pkg/retrieval"
	"github.com/papercomputeco/remem/pkg/session"
	"github.com/papercomputeco/remem/pkg/weights"
)

type ServeCommander struct {
	listen    string
	configDir string
	debug     bool
	logger    *zap.Logger
	cfg       *config.Config
}

const serveLongDesc string = `Run the remem memory API server.

The server exposes the per-turn memory lifecycle over HTTP:
retrieve memories before a model call, report citation feedback after it,
record conversation messages, and end sessions to trigger reflection.

Configuration comes from config.toml in the .remem/ directory, REMEM_*
environment variables, and CLI flags (flags win).`

const serveShortDesc string = "Run the remem API server"

var serveFlags = config.FlagSet{
	config.FlagAPIListen: {
		Name: "listen", Shorthand: "l", ViperKey: "api.listen",
		Description: "Address for the API server to listen on",
	},
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, serveFlags, []string{config.FlagAPIListen})

			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagAPIListen, &cmder.listen)

	return cmd
}

func (c *ServeCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	cfg := c.cfg

	rerankerCfg := reranker.Config{
		TopK:         cfg.Reranker.TopK,
		TopM:         cfg.Reranker.TopM,
		Temperature:  cfg.Reranker.Temperature,
		LearningRate: cfg.Reranker.LearningRate,
		Baseline:     cfg.Reranker.Baseline,
	}
	if err := rerankerCfg.Validate(); err != nil {
		return fmt.Errorf("reranker config: %w", err)
	}
	dim := int(cfg.Embedding.Dimensions)
	if dim <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", dim)
	}

	kvStore, err := c.newKVStore()
	if err != nil {
		return err
	}
	defer kvStore.Close()

	embedder, err := c.newEmbedder()
	if err != nil {
		return err
	}
	defer embedder.Close()

	memoryBank, err := c.newBank(embedder)
	if err != nil {
		return err
	}
	defer memoryBank.Close()

	apiKey := cfg.LLM.APIKey
	if apiKey == "" && os.Getenv(credentials.EnvVarForProvider(cfg.LLM.Provider)) == "" {
		apiKey = credentials.StoredKey(cfg.LLM.Provider, c.configDir)
	}
	llmCall, err := llm.NewCaller(llm.CallerConfig{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   apiKey,
		BaseURL:  cfg.LLM.Target,
	})
	if err != nil {
		return fmt.Errorf("creating llm caller: %w", err)
	}

	events, err := c.newPublisher()
	if err != nil {
		return err
	}
	defer events.Close()

	scope := cfg.Storage.Scope
	retriever := retrieval.NewRetriever(memoryBank, c.logger)
	rr := reranker.NewReranker(embedder, c.logger)
	weightStore := weights.NewStore(kvStore, scope, dim, c.logger)
	bufferStore := bufferstore.NewStore(kvStore, scope, c.logger)
	extractor := reflection.NewExtractor(llmCall, c.logger)
	consolidator := consolidation.NewConsolidator(memoryBank, retriever, llmCall, events, c.logger)
	worker := reflection.NewWorker(extractor, consolidator, bufferStore, c.logger)

	sessions := session.NewService(
		retriever, rr, weightStore, bufferStore, worker, events,
		rerankerCfg, dim, c.logger,
	)

	server := api.NewServer(api.Config{ListenAddr: cfg.API.Listen}, sessions, c.logger)

	c.logger.Info("starting remem",
		zap.String("listen", cfg.API.Listen),
		zap.String("storage", cfg.Storage.Provider),
		zap.String("bank", cfg.Bank.Provider),
		zap.String("embedding", cfg.Embedding.Provider),
		zap.String("llm", cfg.LLM.Provider),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return server.Shutdown()
	}
}

func (c *ServeCommander) newKVStore() (kv.Store, error) {
	switch c.cfg.Storage.Provider {
	case "inmemory":
		c.logger.Info("using in-memory storage")
		return kvinmemory.NewStore(), nil

	case "sqlite":
		path := c.cfg.Storage.SQLitePath
		if path == "" {
			// Prefer an existing database before creating a fresh one.
			if found, err := sqlitepath.ResolveSQLitePath(""); err == nil {
				path = found
			}
		}
		if path == "" {
			target, err := dotdir.NewManager().Target(c.configDir)
			if err != nil {
				return nil, fmt.Errorf("resolving storage path: %w", err)
			}
			path = filepath.Join(target, "remem.db")
		}
		c.logger.Info("using SQLite storage", zap.String("path", path))
		return kvsqlite.NewStore(path, c.logger)

	case "postgres":
		if c.cfg.Storage.PostgresDSN == "" {
			return nil, fmt.Errorf("storage.postgres_dsn is required for postgres storage")
		}
		c.logger.Info("using Postgres storage")
		return kvpostgres.NewStore(context.Background(), c.cfg.Storage.PostgresDSN, c.logger)

	default:
		return nil, fmt.Errorf("unknown storage provider: %q", c.cfg.Storage.Provider)
	}
}

func (c *ServeCommander) newEmbedder() (embeddings.Embedder, error) {
	switch c.cfg.Embedding.Provider {
	case "ollama":
		return embedollama.NewEmbedder(embedollama.Config{
			BaseURL: c.cfg.Embedding.Target,
			Model:   c.cfg.Embedding.Model,
		})

	case "mock":
		return embedmock.NewEmbedder(int(c.cfg.Embedding.Dimensions)), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", c.cfg.Embedding.Provider)
	}
}

func (c *ServeCommander) newBank(embedder embeddings.Embedder) (bank.Bank, error) {
	cfg := c.cfg.Bank

	switch cfg.Provider {
	case "inmemory":
		return bankmem.NewBank(embedder, c.logger), nil

	case "sqlitevec":
		path := cfg.SQLitePath
		if path == "" {
			target, err := dotdir.NewManager().Target(c.configDir)
			if err != nil {
				return nil, fmt.Errorf("resolving bank path: %w", err)
			}
			path = filepath.Join(target, "bank.db")
		}
		return banksqlitevec.NewBank(banksqlitevec.Config{
			DBPath:     path,
			Dimensions: c.cfg.Embedding.Dimensions,
		}, embedder, c.logger)

	case "chroma":
		return bankchroma.NewBank(bankchroma.Config{
			URL:            cfg.Target,
			CollectionName: cfg.Collection,
		}, embedder, c.logger)

	case "qdrant":
		return bankqdrant.NewBank(context.Background(), bankqdrant.Config{
			Host:           cfg.Host,
			Port:           cfg.Port,
			CollectionName: cfg.Collection,
			Dimensions:     c.cfg.Embedding.Dimensions,
		}, embedder, c.logger)

	default:
		return nil, fmt.Errorf("unknown bank provider: %q", cfg.Provider)
	}
}

func (c *ServeCommander) newPublisher() (eventstream.Publisher, error) {
	switch c.cfg.Events.Provider {
	case "", "nop":
		return eventnop.NewPublisher(), nil

	case "kafka":
		return eventkafka.NewPublisher(eventkafka.Config{
			Brokers: c.cfg.Events.Brokers,
			Topic:   c.cfg.Events.Topic,
		})

	default:
		return nil, fmt.Errorf("unknown events provider: %q", c.cfg.Events.Provider)
	}
}
