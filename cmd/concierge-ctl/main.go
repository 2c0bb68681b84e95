package main

import (
	"os"

	"github.com/loqalabs/loqa-concierge/internal/cli"
)

var version = "0.1.0-dev"

func main() {
	if err := cli.Execute(version); err != nil {
		os.Exit(1)
	}
}
