// Package server implements the GoChat relay: the WebSocket transport, the
// hub that owns connection state and presence, and the HTTP surface.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, wire events, routing, and HTTP handlers so that
// each concern stays small and testable.
package server
