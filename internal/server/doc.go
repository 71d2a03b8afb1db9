// Package server implements the development collector: an HTTP server that
// accepts the tracking API, records what it receives and streams it back.
//
// Endpoints:
//
//   - GET  /: event viewer page (see the dashboard package)
//   - GET  /script.js, /script-edge.js: a minimal tracking script
//   - POST /api/send: page views, custom events and identify calls
//   - POST /api/collect/vitals: web-vitals measurements
//   - POST /api/collect/forms: form interaction events
//   - GET  /api/events: recorded events as JSON, filtered by ?kind= and ?website=
//   - GET  /api/sse: Server-Sent Events stream of recorded events
//
// Users of the trackbridge library should not need to interact with this
// package directly; it backs the collector command.
package server
