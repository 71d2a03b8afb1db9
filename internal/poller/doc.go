// Package poller provides the timing and HTTP primitives used by trackbridge.
//
// This package is internal to trackbridge. It covers the two places where the
// SDK suspends work:
//
//   - [Wait]: fixed-interval polling until a condition holds or the context ends
//   - [Client]: pooled HTTP client used for script fetches and collector posts
//
// Users of the trackbridge library should not need to interact with this
// package directly. Configuration is done through the main trackbridge package.
package poller
