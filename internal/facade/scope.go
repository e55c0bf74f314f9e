package facade

import (
	"github.com/iago/food-search-pipeline/internal/broker"
)

// Scope owns the channels used by one facade. Process-wide connections are
// shared; channels live as long as the scope.
type Scope struct {
	*Facade
	channels *broker.ChannelProvider
}

func NewScope(connections *broker.ConnectionProvider, routes Routes, observer broker.PublishObserver) *Scope {
	channels := broker.NewChannelProvider(connections)
	return &Scope{
		Facade:   New(broker.NewPublisher(channels, observer), routes),
		channels: channels,
	}
}

func (s *Scope) Close() error {
	return s.channels.Close()
}

// ScopeFactory opens a scope per logical request.
type ScopeFactory func() *Scope

func NewScopeFactory(connections *broker.ConnectionProvider, routes Routes, observer broker.PublishObserver) ScopeFactory {
	return func() *Scope {
		return NewScope(connections, routes, observer)
	}
}
