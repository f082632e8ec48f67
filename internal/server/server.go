// Package server wires the HTTP API and stream supervision into the application.
package server

import "github.com/google/wire"

// ProviderSet is server providers.
var ProviderSet = wire.NewSet(NewHTTPServer, NewGRPCServer, NewStreamServer)
