package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"wikiadm/config"
	"wikiadm/core/appbootstrap"
	"wikiadm/core/store"
	"wikiadm/core/utils"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	logger := utils.NewLogger()
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("load config: %v", err)
		os.Exit(1)
	}

	db, err := store.NewDB(cfg, logger)
	if err != nil {
		logger.Errorf("open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := appbootstrap.Run(ctx, cfg, db, logger); err != nil {
		logger.Errorf("server: %v", err)
		os.Exit(1)
	}
}
