package manager

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"github.com/VishalT25/companion-sync/pkg/cache"
	"github.com/VishalT25/companion-sync/pkg/models"
	"github.com/VishalT25/companion-sync/pkg/realtime"
	"github.com/VishalT25/companion-sync/pkg/remote"
	"github.com/VishalT25/companion-sync/pkg/store"
	"github.com/VishalT25/companion-sync/pkg/validate"
)

// PlannerConfig wires a Planner manager.
type PlannerConfig struct {
	Owner models.UserID
	Gate  Gate

	EventRepo    remote.Repository[models.Event]
	CategoryRepo remote.Repository[models.Category]

	EventCache    cache.TableCache[models.Event]
	CategoryCache cache.TableCache[models.Category]

	Meter metric.Meter
	Log   zerolog.Logger
}

// Planner is the operation manager for the events+categories domain. Events
// reference categories loosely: deleting a category detaches its events
// instead of cascading a delete.
type Planner struct {
	mu    sync.Mutex
	owner models.UserID
	gate  Gate

	events     *collection[models.Event]
	categories *collection[models.Category]

	log zerolog.Logger
}

// NewPlanner builds the manager and bootstraps both stores from the cache.
func NewPlanner(cfg PlannerConfig) *Planner {
	if cfg.Gate == nil {
		cfg.Gate = OpenGate{}
	}
	log := cfg.Log.With().Str("domain", "planner").Logger()
	m := &Planner{
		owner: cfg.Owner,
		gate:  cfg.Gate,
		log:   log,
	}
	m.events = newCollection(
		&m.mu, models.TableEvents,
		cfg.EventRepo, cfg.EventCache,
		store.NewStats(models.TableEvents, cfg.Meter),
		validate.Event, log,
	)
	m.categories = newCollection(
		&m.mu, models.TableCategories,
		cfg.CategoryRepo, cfg.CategoryCache,
		store.NewStats(models.TableCategories, cfg.Meter),
		validate.Category, log,
	)
	m.events.bootstrap()
	m.categories.bootstrap()
	return m
}

// LoadEvents replaces the event store with the remote state.
func (m *Planner) LoadEvents(ctx context.Context) error {
	return m.events.load(ctx, m.owner)
}

// LoadCategories replaces the category store with the remote state.
func (m *Planner) LoadCategories(ctx context.Context) error {
	return m.categories.load(ctx, m.owner)
}

// Events returns the current event collection.
func (m *Planner) Events() []models.Event { return m.events.all() }

// Categories returns the current category collection.
func (m *Planner) Categories() []models.Category { return m.categories.all() }

// Event returns one event by id.
func (m *Planner) Event(id models.EventID) (models.Event, bool) {
	return m.events.get(id.String())
}

// Category returns one category by id.
func (m *Planner) Category(id models.CategoryID) (models.Category, bool) {
	return m.categories.get(id.String())
}

// EventsForCategory derives the events grouped under one category.
func (m *Planner) EventsForCategory(id models.CategoryID) []models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Event
	for _, e := range m.events.store.All() {
		if e.CategoryID == id {
			out = append(out, e)
		}
	}
	return out
}

// SubscribeEvents registers fn for synchronous event store notifications.
func (m *Planner) SubscribeEvents(fn func(store.Change[models.Event])) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events.store.Subscribe(fn)
}

// SubscribeCategories registers fn for synchronous category store
// notifications.
func (m *Planner) SubscribeCategories(fn func(store.Change[models.Category])) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories.store.Subscribe(fn)
}

// CreateEvent validates and optimistically creates an event.
func (m *Planner) CreateEvent(ctx context.Context, e models.Event) (*Pending, error) {
	return gated(ctx, m.gate, func() (*Pending, error) {
		e.OwnerID = m.owner
		stampNew(&e.CreatedAt, &e.UpdatedAt)
		return m.events.create(ctx, e, createOpts{})
	})
}

// UpdateEvent replaces an event in place; missing targets no-op.
func (m *Planner) UpdateEvent(ctx context.Context, e models.Event) (*Pending, error) {
	return gated(ctx, m.gate, func() (*Pending, error) {
		e.OwnerID = m.owner
		stampTouched(&e.UpdatedAt)
		return m.events.update(ctx, e)
	})
}

// DeleteEvent removes an event. Events are leaves; nothing cascades.
func (m *Planner) DeleteEvent(ctx context.Context, id models.EventID) (*Pending, error) {
	return gated(ctx, m.gate, func() (*Pending, error) {
		return m.events.remove(ctx, id.String(), nil)
	})
}

// CreateCategory validates and optimistically creates a category.
func (m *Planner) CreateCategory(ctx context.Context, c models.Category) (*Pending, error) {
	return gated(ctx, m.gate, func() (*Pending, error) {
		c.OwnerID = m.owner
		stampNew(&c.CreatedAt, &c.UpdatedAt)
		return m.categories.create(ctx, c, createOpts{})
	})
}

// UpdateCategory replaces a category in place; missing targets no-op.
func (m *Planner) UpdateCategory(ctx context.Context, c models.Category) (*Pending, error) {
	return gated(ctx, m.gate, func() (*Pending, error) {
		c.OwnerID = m.owner
		stampTouched(&c.UpdatedAt)
		return m.categories.update(ctx, c)
	})
}

// DeleteCategory removes the category and detaches its events in the same
// synchronous call: the events survive with a zeroed category reference. A
// remote failure restores the category and re-attaches every detached event.
func (m *Planner) DeleteCategory(ctx context.Context, id models.CategoryID) (*Pending, error) {
	return gated(ctx, m.gate, func() (*Pending, error) {
		return m.categories.remove(ctx, id.String(), func() func() {
			detached := m.detachEvents(id)
			return func() {
				for _, e := range detached {
					m.events.store.Upsert(e)
					if err := m.events.cache.Put(e); err != nil {
						m.log.Warn().Err(err).Str("id", e.Key()).Msg("snapshot write failed")
					}
				}
			}
		})
	})
}

// ReconcileEvents applies an externally pushed event change.
func (m *Planner) ReconcileEvents(ev realtime.Event[models.Event]) {
	m.events.reconcile(ev, nil)
}

// ReconcileCategories applies an externally pushed category change. Deletes
// detach events exactly like a local delete.
func (m *Planner) ReconcileCategories(ev realtime.Event[models.Category]) {
	m.categories.reconcile(ev, func() {
		if ev.Action != realtime.ActionDelete {
			return
		}
		id, err := models.ParseCategoryID(ev.ID)
		if err != nil {
			return
		}
		m.detachEvents(id)
	})
}

// detachEvents zeroes the category reference on every event under id and
// returns the pre-detach copies. Caller holds the domain lock.
func (m *Planner) detachEvents(id models.CategoryID) []models.Event {
	var detached []models.Event
	for _, e := range m.events.store.All() {
		if e.CategoryID != id {
			continue
		}
		detached = append(detached, e)
		e.CategoryID = models.CategoryID{}
		m.events.store.Upsert(e)
		if err := m.events.cache.Update(e); err != nil {
			m.log.Warn().Err(err).Str("id", e.Key()).Msg("snapshot write failed")
		}
	}
	return detached
}

// EventStats returns the event operation counters.
func (m *Planner) EventStats() store.StatsSnapshot { return m.events.stats.Snapshot() }

// CategoryStats returns the category operation counters.
func (m *Planner) CategoryStats() store.StatsSnapshot { return m.categories.stats.Snapshot() }
