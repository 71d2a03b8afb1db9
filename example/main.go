package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/trackbridge"
	"github.com/jpalmerr/trackbridge/internal/server"
	"github.com/jpalmerr/trackbridge/internal/store"
)

const (
	collectorPort = 3000
	websiteID     = "demo-site"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// local collector (the same one "trackbridge collector" runs)
	collector := server.NewServer(store.NewMemoryStore(0), collectorPort, []string{websiteID}, nil, logger)
	if err := collector.Start(ctx); err != nil {
		slog.Error("failed to start collector", "error", err)
		os.Exit(1)
	}

	p, err := trackbridge.NewProvider(
		trackbridge.WithWebsiteID(websiteID),
		trackbridge.WithHost(fmt.Sprintf("http://localhost:%d", collectorPort)),
		trackbridge.WithTag("demo"),
		trackbridge.WithDevelopment(true),
		trackbridge.WithLogger(logger),
		trackbridge.WithBeforeSend(func(ep trackbridge.EventPayload) (trackbridge.EventPayload, error) {
			// never forward e-mail addresses
			delete(ep.Data, "email")
			return ep, nil
		}),
	)
	if err != nil {
		slog.Error("failed to create provider", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	if err := p.Start(ctx); err != nil {
		slog.Error("failed to load tracking script", "error", err)
		os.Exit(1)
	}

	site := newSite(p, logger)
	httpServer := &http.Server{
		Addr:              ":8080",
		Handler:           p.Middleware(site.routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   trackbridge Demo                                    ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Site:      http://localhost:8080                    ║")
	fmt.Println("  ║   Events:    http://localhost:3000/api/events         ║")
	fmt.Println("  ║   Live feed: http://localhost:3000/api/sse            ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("site error", "error", err)
		os.Exit(1)
	}
}
