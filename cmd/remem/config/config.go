// Package configcmder provides the config command for managing persistent
// remem configuration stored in the .remem/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent remem configuration.

Configuration is stored as config.toml in the .remem/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  storage.provider, storage.scope, storage.sqlite_path, storage.postgres_dsn,
  bank.provider, bank.sqlite_path, bank.target, bank.host, bank.port, bank.collection,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  llm.provider, llm.model, llm.api_key, llm.target,
  reranker.top_k, reranker.top_m, reranker.temperature,
  reranker.learning_rate, reranker.baseline,
  events.provider, events.brokers, events.topic,
  api.listen, client.api_target

Use subcommands to get, set, or list configuration values:
  remem config set <key> <value>    Set a configuration value
  remem config get <key>            Get a configuration value
  remem config list                 List all configuration values

Examples:
  remem config set bank.provider qdrant
  remem config set embedding.model nomic-embed-text
  remem config get reranker.learning_rate
  remem config list`

const configShortDesc string = "Manage persistent remem configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
