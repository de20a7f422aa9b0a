package api

import "context"

// DefaultServerFactory is the default implementation of ServerFactory
type DefaultServerFactory struct{}

// NewServerFactory creates a new server factory
func NewServerFactory() ServerFactory {
	return &DefaultServerFactory{}
}

// CreateServerStarter creates a server starter
func (f *DefaultServerFactory) CreateServerStarter() ServerStarter {
	return &DefaultServerStarter{}
}

// DefaultServerStarter starts the HTTP server with StartServer
type DefaultServerStarter struct{}

func (s *DefaultServerStarter) StartServer(ctx context.Context, kv KVStore, config ServerConfig) error {
	return StartServer(ctx, kv, config)
}
