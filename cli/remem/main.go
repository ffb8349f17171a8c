package main

import (
	"os"

	rememcmder "github.com/papercomputeco/remem/cmd/remem"
)

func main() {
	cmd := rememcmder.NewRememCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
