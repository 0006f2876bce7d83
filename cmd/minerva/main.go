package main

import (
	"os"

	"github.com/otarik/minerva/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
