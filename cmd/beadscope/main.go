package main

import (
	"os"

	"github.com/mistakeknot/beadscope/cmd/beadscope/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
