// Package http provides the demo site's HTTP handlers.
//
// Every content route is dual-natured: plain requests get a complete HTML
// layout, requests carrying the partial-request header get just the
// region's fragment plus a canonical-URL response header. The extra
// routes exist to provoke specific client behaviors:
//
//   - /moved: redirect, for canonical-URL adoption
//   - /slow: configurable delay, for timeout handling
//   - /boom: server error, for the full-page fallback
package http
