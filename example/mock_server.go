package main

import (
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

// regionLatency is the simulated one-way network cost of each mock region.
var regionLatency = map[string]time.Duration{
	"dublin":    15 * time.Millisecond,
	"london":    25 * time.Millisecond,
	"frankfurt": 40 * time.Millisecond,
	"virginia":  90 * time.Millisecond,
	"singapore": 180 * time.Millisecond,
	"sydney":    260 * time.Millisecond,
}

// StartMockRegionServer runs a mock latency endpoint at /cb.json?region=name.
//
// Known regions answer after their base latency plus up to 20% jitter.
// "mars" never answers in time, so it lands on the blocklist. "flaky" drops
// the connection on roughly one request in five, producing network-error
// samples. Call this in a goroutine before starting SpeedBoard.
func StartMockRegionServer(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cb.json", func(w http.ResponseWriter, r *http.Request) {
		region := r.URL.Query().Get("region")

		switch region {
		case "mars":
			select {
			case <-time.After(30 * time.Second):
			case <-r.Context().Done():
			}
			return
		case "flaky":
			if rand.Intn(5) == 0 {
				if hj, ok := w.(http.Hijacker); ok {
					if conn, _, err := hj.Hijack(); err == nil {
						_ = conn.Close()
						return
					}
				}
			}
			time.Sleep(60 * time.Millisecond)
		default:
			base, ok := regionLatency[region]
			if !ok {
				http.NotFound(w, r)
				return
			}
			jitter := time.Duration(rand.Int63n(int64(base)/5 + 1))
			time.Sleep(base + jitter)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}
