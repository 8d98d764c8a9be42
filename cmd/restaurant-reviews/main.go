package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dgellow/restaurant-reviews/internal"
	"github.com/dgellow/restaurant-reviews/internal/config"
	"github.com/dgellow/restaurant-reviews/internal/log"
)

var BuildVersion = "dev"

func main() {
	envFile := flag.String("env-file", "", "path to a .env file loaded before reading the environment")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}

	if *envFile == "" {
		if _, err := os.Stat(".env"); err == nil {
			*envFile = ".env"
		}
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}
	if err := log.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.LogError("Invalid logging config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting restaurant-reviews", map[string]any{
		"version":    BuildVersion,
		"env":        cfg.Env,
		"production": cfg.Production,
		"log_level":  log.GetLogLevel(),
	})

	ctx := context.Background()
	app, err := internal.NewApp(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create application: %v", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.LogError("Application error: %v", err)
		os.Exit(1)
	}
}
