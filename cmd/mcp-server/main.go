// Package main provides the MCP server entry point for a docsync index.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/bull/docsync/internal/app"
	"github.com/bull/docsync/internal/config"
	mcpserver "github.com/bull/docsync/internal/mcp"
)

func main() {
	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Same file, .env and environment layering as the docsync CLI
	cfg, err := config.Load(os.Getenv("DOCSYNC_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	logger := app.NewLogger(os.Stderr, cfg.LogLevel)

	if cfg.Store.Backend == config.StoreMemory {
		log.Println("Memory store selected: the index starts empty and nothing syncs into it")
	}

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	embedder, err := app.NewEmbedder(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create embedder: %v", err)
	}

	extractor, err := app.NewExtractor(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	server := mcpserver.NewServer(&mcpserver.Config{
		Store:          store,
		Embedder:       embedder,
		WatchDir:       cfg.WatchDir,
		StateDir:       cfg.ResolvedStateDir(),
		Accept:         extractor.Supports,
		Overlap:        cfg.Chunk.Overlap,
		DefaultResults: cfg.Server.Results,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", mcpserver.NewHealthHandler(store))
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(server, &mcpserver.HTTPHandlerOptions{Stateless: true}))
	mux.HandleFunc("/", mcpserver.NewLandingHandler(cfg.WatchDir))

	addr := "0.0.0.0:" + strconv.Itoa(cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		httpServer.Close()
	}()

	if cfg.Server.Mode == "http" {
		// HTTP mode: serve MCP over HTTP for remote clients
		log.Printf("Starting HTTP server on %s (MCP at /mcp, health at /health)", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
		return
	}

	// Stdio mode: MCP over stdin/stdout for local clients, health endpoint in background
	go func() {
		log.Printf("Starting health server on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Health server error: %v", err)
		}
	}()

	log.Printf("Starting docsync MCP server for %s (stdio mode)...", cfg.WatchDir)
	if err := server.Run(ctx); err != nil {
		log.Printf("server error: %v", err)
		os.Exit(1)
	}
}
