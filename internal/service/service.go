// Package service exposes the stream use case over HTTP.
package service

import "github.com/google/wire"

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewStreamService)
