package main

import (
	"context"
	"flag"
	"log"
	"os"

	"AnomalyReplay/internal/di"
	"AnomalyReplay/pkg/config"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	dataset := flag.String("dataset", "", "dataset CSV, overrides dataset.path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *dataset != "" {
		cfg.Dataset.Path = *dataset
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	err = app.Run(context.Background())
	cleanup()
	if err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
