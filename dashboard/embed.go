// Package dashboard provides the embedded web UI assets for SpeedBoard.
//
// The page is a single table ranked by rolling average latency, fed by the
// server's Server-Sent Events stream, with a retry button per blocked
// endpoint. Users of the speedboard library should not need to interact
// with this package directly.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - dashboard page with inline CSS and JavaScript
//
// index.html contains a {{.Title}} placeholder that the server replaces
// with the HTML-escaped dashboard title.
//
//go:embed assets/*
var Assets embed.FS
