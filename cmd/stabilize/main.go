package main

import (
	"log"

	"vision-stab/config"
	"vision-stab/internal/cli"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := cli.NewRootCmd(cfg).Execute(); err != nil {
		log.Fatal(err)
	}
}
