package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/swiftlens/swiftlens-go/internal/config"
	"github.com/swiftlens/swiftlens-go/internal/engine"
	"github.com/swiftlens/swiftlens-go/internal/lsp"
	"github.com/swiftlens/swiftlens-go/internal/server"
)

func main() {
	// Ensure log output goes to stderr, never stdout (MCP uses stdout for JSON-RPC)
	log.SetOutput(os.Stderr)

	ctx := context.Background()

	cfgPath := "swiftlens.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		// If config file doesn't exist, use defaults with env overrides
		fmt.Fprintf(os.Stderr, "warning: %v, using defaults\n", err)
		cfg = config.FromEnv()
	}

	eng := engine.New(sourcekitFactory(), cfg.EngineOptions())

	srv, err := server.New(eng, cfg)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// sourcekitFactory wires the engine to the sourcekit-lsp subprocess
// launcher. The engine and server only ever see lsp.Factory.
func sourcekitFactory() lsp.Factory {
	return lsp.DefaultFactory()
}
