// Package dashboard provides the embedded event viewer served by the
// development collector.
//
// The page lists the events the collector has received and follows new ones
// over Server-Sent Events. It is compiled into the binary, so the collector
// needs no asset files at run time.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the viewer.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Event viewer with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
