package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/coresolutiondoteu/open-webui/cmd"
)

func main() {
	// A missing .env is fine; existing environment variables win.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
