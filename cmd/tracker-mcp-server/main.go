package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"customer-care/internal/config"
	"customer-care/internal/mcpserver"
	"customer-care/internal/storage"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}
	cfg := config.New()

	store, err := storage.Open(cfg.TrackerStoreBackend, cfg.TrackerStorePath)
	if err != nil {
		log.Fatalf("❌ Failed to open tracker store: %v", err)
	}
	defer store.Close()

	log.Printf("🚀 Starting tracker MCP server (%s store at %s)", cfg.TrackerStoreBackend, cfg.TrackerStorePath)
	server := mcpserver.NewServer(mcpserver.NewTrackerServer(store, cfg.Workers), "1.0.0")
	log.Printf("📋 Registered tools: list_sessions, get_session, conversation_stats")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := server.Run(ctx, mcp.NewStdioTransport()); err != nil && ctx.Err() == nil {
		log.Printf("❌ Tracker MCP server failed: %v", err)
	}
}
