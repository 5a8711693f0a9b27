// Standalone mock latency server for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/speedboard serve -c example/config.yaml
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"
)

func main() {
	addr := flag.String("addr", ":9999", "listen address")
	flag.Parse()

	fmt.Printf("Mock latency server starting on %s\n", *addr)
	fmt.Println("GET /cb.json?region=<name>&ms=<base latency>")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	http.HandleFunc("/cb.json", func(w http.ResponseWriter, r *http.Request) {
		base, err := time.ParseDuration(r.URL.Query().Get("ms") + "ms")
		if err != nil || base < 0 {
			http.Error(w, "ms must be a non-negative integer", http.StatusBadRequest)
			return
		}

		jitter := time.Duration(rand.Int63n(int64(base)/5 + 1))
		select {
		case <-time.After(base + jitter):
		case <-r.Context().Done():
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"region":%q}`, r.URL.Query().Get("region"))
	})

	if err := http.ListenAndServe(*addr, nil); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
