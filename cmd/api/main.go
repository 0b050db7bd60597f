package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"calmchat/internal/api"
	"calmchat/internal/app"
	"calmchat/internal/config"
	"calmchat/internal/logger"

	"github.com/joho/godotenv"
	tclient "go.temporal.io/sdk/client"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger.SetVerbose(cfg.Verbose)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	a, err := app.New(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	// A memory store is private to this process, so worker-side ingestion would not be visible.
	var wf api.WorkflowClient
	if cfg.StoreBackend != "memory" {
		tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
		if err != nil {
			log.Printf("temporal unavailable at %s, ingesting in-process: %v", cfg.TemporalAddress, err)
		} else {
			defer tc.Close()
			wf = tc
		}
	}

	h := api.NewServer(a, wf)
	log.Printf("calmchat api listening on %s store=%s llm_providers=%q embed_providers=%q", cfg.APIAddr, cfg.StoreBackend, cfg.LLMProviders, cfg.EmbedProviders)
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		log.Fatal(err)
	}
}
