package facade

import (
	"context"
	"sync"

	"github.com/iago/food-search-pipeline/internal/domain"
	"github.com/iago/food-search-pipeline/internal/outcome"
)

// Publisher is implemented by *broker.Publisher.
type Publisher interface {
	Publish(ctx context.Context, route domain.Route, payload any) error
}

// Routes are the fixed destinations of the pipeline's named operations.
type Routes struct {
	Search       domain.Route
	Resolved     domain.Route
	Materialized domain.Route
}

// Command publishes envelopes of one payload type to one route.
type Command[T any] struct {
	publisher Publisher
	route     domain.Route
}

func (c *Command[T]) Route() domain.Route {
	return c.route
}

func (c *Command[T]) Execute(ctx context.Context, envelope domain.Envelope[T]) error {
	if c.route.Broker == "" || c.route.Destination == "" {
		return outcome.NotFoundf("no route configured")
	}
	return c.publisher.Publish(ctx, c.route, envelope)
}

// Facade exposes one accessor per pipeline operation. Commands are built on
// first access and reused afterwards.
type Facade struct {
	publisher Publisher
	routes    Routes

	searchOnce sync.Once
	search     *Command[[]string]

	resolvedOnce sync.Once
	resolved     *Command[[]string]

	materializedOnce sync.Once
	materialized     *Command[string]
}

func New(publisher Publisher, routes Routes) *Facade {
	return &Facade{publisher: publisher, routes: routes}
}

// SubmitSearch publishes a new search (tags) to the resolver.
func (f *Facade) SubmitSearch() *Command[[]string] {
	f.searchOnce.Do(func() {
		f.search = &Command[[]string]{publisher: f.publisher, route: f.routes.Search}
	})
	return f.search
}

// ForwardResolved hands resolved values to the materializer.
func (f *Facade) ForwardResolved() *Command[[]string] {
	f.resolvedOnce.Do(func() {
		f.resolved = &Command[[]string]{publisher: f.publisher, route: f.routes.Resolved}
	})
	return f.resolved
}

// ForwardMaterialized hands a result file path to the recorder.
func (f *Facade) ForwardMaterialized() *Command[string] {
	f.materializedOnce.Do(func() {
		f.materialized = &Command[string]{publisher: f.publisher, route: f.routes.Materialized}
	})
	return f.materialized
}
