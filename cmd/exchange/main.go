package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"

	"github.com/joho/godotenv"

	"github.com/nastyazhadan/trading-hub/internal/app/exchange"
	"github.com/nastyazhadan/trading-hub/shared/config"
)

func main() {
	envPath := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to read %s: %v", *envPath, err)
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	exchange.Run(context.Background(), *cfg)
}
