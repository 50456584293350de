// Package server exposes sitegate over HTTP.
//
// The public listener serves the health probes and the authenticated
// provisioning API; a second listener serves Prometheus metrics. Every
// failure is written as the shared apierror envelope.
package server
