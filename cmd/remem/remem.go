// Package rememcmder
package rememcmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/remem/cmd/remem/auth"
	chatcmder "github.com/papercomputeco/remem/cmd/remem/chat"
	configcmder "github.com/papercomputeco/remem/cmd/remem/config"
	initcmder "github.com/papercomputeco/remem/cmd/remem/init"
	servecmder "github.com/papercomputeco/remem/cmd/remem/serve"
	versioncmder "github.com/papercomputeco/remem/cmd/version"
)

const rememLongDesc string = `Remem is self-improving long-term memory for your agents.

It stores what your users talk about, decides which memories to surface
on every turn, and learns from the model's citations which memories were
actually useful.

Run services using:
  remem serve          Run the memory API server
  remem chat           Interactive chat with memory enabled`

const rememShortDesc string = "Remem - Reflective Agent Memory"

func NewRememCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remem",
		Short: rememShortDesc,
		Long:  rememLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .remem/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
