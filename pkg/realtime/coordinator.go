package realtime

import (
	"context"
	"sync"

	"github.com/VishalT25/companion-sync/pkg/models"
)

// Feed is the inbound side of one table's change subscription.
type Feed[T models.Record] interface {
	Events() <-chan Event[T]
	Run(ctx context.Context)
}

// Coordinator owns the goroutines that run feeds and route their events into
// manager reconciliation. Routing is one goroutine per feed; the manager's own
// lock serializes the applies against local mutations.
type Coordinator struct {
	wg sync.WaitGroup
}

// NewCoordinator returns an empty coordinator.
func NewCoordinator() *Coordinator { return &Coordinator{} }

// Route starts feed and forwards every event to apply until ctx is done or
// the feed closes. apply is the owning manager's reconciliation entry point.
//
// Route is a free function because methods cannot introduce type parameters.
func Route[T models.Record](ctx context.Context, c *Coordinator, feed Feed[T], apply func(Event[T])) {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		feed.Run(ctx)
	}()
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-feed.Events():
				if !ok {
					return
				}
				apply(ev)
			}
		}
	}()
}

// Wait blocks until every routed feed has stopped. Cancel the context passed
// to Route first.
func (c *Coordinator) Wait() { c.wg.Wait() }
