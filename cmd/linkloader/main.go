package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"

	"github.com/joho/godotenv"

	"github.com/JakeFAU/linkloader/internal/config"
	"github.com/JakeFAU/linkloader/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before config")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("load env file: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	app, err := server.Build(ctx, &cfg)
	if err != nil {
		log.Fatalf("build app: %v", err)
	}
	if err := app.Run(ctx); err != nil {
		log.Fatalf("run app: %v", err)
	}
}
