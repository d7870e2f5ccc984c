package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"postforge/internal/config"
	"postforge/internal/logbus"
	"postforge/internal/runlog"
	"postforge/internal/schedule"
	"postforge/internal/server"
	"postforge/internal/stage"
	"postforge/internal/supervisor"
)

func main() {
	configDir := envOr("POSTFORGE_DIR", ".postforge")
	logsDir := envOr("POSTFORGE_LOGS", "./logs")
	workerBin := envOr("POSTFORGE_WORKER", "postforge-worker")

	registry := stage.Defaults(workerBin)
	if path := os.Getenv("POSTFORGE_STAGES"); path != "" {
		loaded, err := stage.Load(path)
		if err != nil {
			log.Fatalf("cannot load stage file: %v", err)
		}
		registry = loaded
	}

	cfg := config.NewStore(configDir)
	bus := logbus.New()
	sup := supervisor.New(registry, bus, runlog.New(logsDir))

	loop := schedule.New(func(ctx context.Context) error {
		_, err := sup.Run(ctx, stage.PipelineStage, nil)
		return err
	})

	srv := server.New(cfg, registry, sup, loop, bus)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	fmt.Println("postforge control plane on port", port)
	log.Fatal(http.ListenAndServe(":"+port, srv.Router()))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
