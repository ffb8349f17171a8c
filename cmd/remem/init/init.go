// Package initcmder provides the init command for initializing a local .remem
// directory in the current working directory.
package initcmder

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const (
	dirName = ".remem"
)

const initLongDesc string = `Initialize a new .remem/ directory in the current working directory.

Creates a local .remem/ directory that takes precedence over the default
~/.remem/ directory for configuration, session state, and storage.

This is useful for maintaining separate memory state per project or directory.

Examples:
  remem init`

const initShortDesc string = "Initialize a local .remem/ directory"

func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInit()
		},
	}

	return cmd
}

func runInit() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		fmt.Printf("Already initialized: %s\n", dir)
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .remem directory: %w", err)
	}

	fmt.Printf("Initialized .remem directory: %s\n", dir)
	return nil
}
