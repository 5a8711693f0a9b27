package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/speedboard"
)

func main() {
	// start mock server (see mock_server.go)
	go StartMockRegionServer(":9999")
	time.Sleep(100 * time.Millisecond)

	// grid API: one declaration, one endpoint per region
	endpoints, err := speedboard.NewEndpointGrid("mock",
		speedboard.WithURLTemplate("http://localhost:9999/cb.json?region={{.region}}"),
		speedboard.WithDimensions(map[string][]string{
			"region": {"dublin", "london", "frankfurt", "virginia", "singapore", "sydney"},
		}),
		speedboard.WithGridDisplayName("Mock"),
		speedboard.WithLocationDimension("region"),
	)
	if err != nil {
		slog.Error("failed to create endpoint grid", "error", err)
		os.Exit(1)
	}

	mars, _ := speedboard.NewEndpoint("mars", "http://localhost:9999/cb.json?region=mars",
		speedboard.WithDisplayName("Mars (always times out)"),
	)
	flaky, _ := speedboard.NewEndpoint("flaky", "http://localhost:9999/cb.json?region=flaky",
		speedboard.WithDisplayName("Flaky edge"),
		speedboard.WithCDN(),
	)
	endpoints = append(endpoints, mars, flaky)

	sb, err := speedboard.New(
		speedboard.WithEndpoints(endpoints...),
		speedboard.WithTimeout(2*time.Second),
		speedboard.WithPort(8080),
		speedboard.WithTitle("SpeedBoard Demo"),
		speedboard.WithBlocklistCallback(func(blocked []speedboard.Endpoint) {
			for _, ep := range blocked {
				slog.Warn("endpoint blocked", "id", ep.ID())
			}
		}),
		speedboard.WithProgressCallback(func(p speedboard.Progress) {
			if p.Phase == speedboard.PhaseTesting {
				slog.Info("warm-up complete", "endpoints", p.Total)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create speedboard", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  SpeedBoard Demo")
	fmt.Println()
	fmt.Println("  Open http://localhost:8080 in your browser")
	fmt.Println("  Metrics at http://localhost:8080/metrics")
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    6 mock regions (via Grid)")
	fmt.Println("    mars  - never answers, lands on the blocklist")
	fmt.Println("    flaky - drops 1 in 5 connections")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sb.Start(ctx); err != nil {
		slog.Error("speedboard error", "error", err)
		os.Exit(1)
	}

	if rec, ok := sb.Nearest(); ok {
		fmt.Printf("Nearest region: %s (%.1f ms)\n", rec.DisplayName, rec.Average)
	}
}
