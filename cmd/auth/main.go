package main

import (
	"os"

	"github.com/aussiebroadwan/quill/cmd/auth/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
