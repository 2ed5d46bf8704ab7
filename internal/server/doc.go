// Package server assembles the demo site: Gin router, CORS, structured
// request logging, Prometheus metrics, and the content routes from the
// http handlers package.
package server
