package main

import (
	"context"
	"log"
	"time"

	"calmchat/internal/activities"
	"calmchat/internal/app"
	"calmchat/internal/config"
	"calmchat/internal/logger"
	"calmchat/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger.SetVerbose(cfg.Verbose)

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	a, err := app.New(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, activities.NewFromApp(a))

	log.Printf("calmchat worker listening on %s queue=%s store=%s embed_providers=%q", cfg.TemporalAddress, cfg.TemporalTaskQueue, cfg.StoreBackend, cfg.EmbedProviders)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal(err)
	}
}
