package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/quarch/dataloop/internal/cli"
)

func main() {
	// Optional .env for DATALOOP_CONFIG and friends.
	_ = godotenv.Load()

	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dataloop: %v\n", err)
		os.Exit(1)
	}
}
