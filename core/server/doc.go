// Package server holds the HTTP server configuration.
//
// The server itself is assembled in the start command from Fiber, the
// middleware stack and the feature loader; this package only carries the
// settings (listen port, API key) so the config package can bind them.
package server
