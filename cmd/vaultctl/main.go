package main

import (
	"os"

	"github.com/vaultcore/vaultcore/cmd/vaultctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
