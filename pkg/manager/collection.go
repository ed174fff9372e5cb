package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/VishalT25/companion-sync/pkg/cache"
	"github.com/VishalT25/companion-sync/pkg/models"
	"github.com/VishalT25/companion-sync/pkg/realtime"
	"github.com/VishalT25/companion-sync/pkg/remote"
	"github.com/VishalT25/companion-sync/pkg/retry"
	"github.com/VishalT25/companion-sync/pkg/store"
	"github.com/VishalT25/companion-sync/pkg/validate"
)

// collection runs the optimistic mutation protocol for one entity type. It is
// instantiated identically per type; the owning manager supplies the shared
// domain lock, cascade hooks, and the validation function.
//
// Lock discipline: every method that touches the store acquires mu, including
// the continuations of remote calls. Cache writes are best-effort and happen
// under the same lock so the snapshot never reorders against the store.
type collection[T models.Record] struct {
	mu    *sync.Mutex
	table string

	store *store.EntityStore[T]
	repo  remote.Repository[T]
	cache cache.TableCache[T]
	stats *store.Stats
	check func(T) validate.Result
	log   zerolog.Logger
}

func newCollection[T models.Record](
	mu *sync.Mutex,
	table string,
	repo remote.Repository[T],
	tc cache.TableCache[T],
	stats *store.Stats,
	check func(T) validate.Result,
	log zerolog.Logger,
) *collection[T] {
	return &collection[T]{
		mu:    mu,
		table: table,
		store: store.New[T](),
		repo:  repo,
		cache: tc,
		stats: stats,
		check: check,
		log:   log.With().Str("table", table).Logger(),
	}
}

// bootstrap seeds the store from the cache snapshot. Called once at
// construction, before any network round trip.
func (c *collection[T]) bootstrap() {
	items, err := c.cache.Retrieve()
	if err != nil {
		c.log.Warn().Err(err).Msg("cache bootstrap failed")
		return
	}
	if len(items) == 0 {
		return
	}
	c.mu.Lock()
	c.store.Replace(items)
	c.mu.Unlock()
	c.log.Debug().Int("count", len(items)).Msg("bootstrapped from cache")
}

// load replaces the store with the authoritative remote state. On a network
// failure the current contents (typically the cache bootstrap) stand, and
// the error is returned so callers can decide whether to surface it.
func (c *collection[T]) load(ctx context.Context, owner models.UserID) error {
	items, err := c.repo.ReadAll(ctx, owner)
	if err != nil {
		c.log.Warn().Err(err).Msg("load failed, keeping cached state")
		return err
	}
	c.mu.Lock()
	c.store.Replace(items)
	c.mu.Unlock()
	c.stats.Loaded(ctx, int64(len(items)))
	if cerr := c.cache.StoreAll(items); cerr != nil {
		c.log.Warn().Err(cerr).Msg("snapshot write failed")
	}
	return nil
}

// createOpts configures the failure handling of one create.
type createOpts struct {
	// parentVisible, when set, marks the record as foreign-key dependent:
	// it reports whether the referenced parent is visible remotely yet.
	parentVisible func(ctx context.Context) (bool, error)
	// policy bounds the retries of a dependent create after a constraint
	// rejection. Ignored when parentVisible is nil.
	policy retry.Policy
}

// create applies the candidate optimistically and dispatches the remote
// create. A validation failure aborts synchronously with no state change.
func (c *collection[T]) create(ctx context.Context, rec T, opts createOpts) (*Pending, error) {
	if v := c.check(rec); !v.OK {
		return nil, &ValidationError{Table: c.table, Problems: v.Problems}
	}

	c.mu.Lock()
	c.store.Upsert(rec)
	c.mu.Unlock()
	c.stats.Created(ctx)
	if err := c.cache.Put(rec); err != nil {
		c.log.Warn().Err(err).Str("id", rec.Key()).Msg("snapshot write failed")
	}

	p := newPending()
	go c.remoteCreate(context.WithoutCancel(ctx), rec, opts, p)
	return p, nil
}

func (c *collection[T]) remoteCreate(ctx context.Context, rec T, opts createOpts, p *Pending) {
	canonical, err := c.repo.Create(ctx, rec, rec.Owner())
	if err == nil {
		c.confirm(ctx, canonical)
		p.settle(nil)
		return
	}

	// Dependent creates get a bounded retry after a constraint rejection:
	// the parent's own remote create may simply not have landed yet.
	if opts.parentVisible != nil && remote.IsConstraint(err) {
		for attempt := 0; ; attempt++ {
			delay, ok := opts.policy.NextDelay(attempt, err)
			if !ok {
				break
			}
			c.log.Debug().Err(err).Str("id", rec.Key()).Dur("delay", delay).Msg("retrying dependent create")
			select {
			case <-ctx.Done():
				c.rollbackCreate(ctx, rec, ctx.Err(), p)
				return
			case <-time.After(delay):
			}
			if visible, verr := opts.parentVisible(ctx); verr != nil || !visible {
				c.log.Debug().Err(verr).Bool("visible", visible).Msg("parent still not visible remotely")
			}
			canonical, err = c.repo.Create(ctx, rec, rec.Owner())
			if err == nil {
				c.confirm(ctx, canonical)
				p.settle(nil)
				return
			}
		}
	}

	c.rollbackCreate(ctx, rec, err, p)
}

func (c *collection[T]) rollbackCreate(ctx context.Context, rec T, err error, p *Pending) {
	c.log.Warn().Err(err).Str("id", rec.Key()).Msg("create failed, rolling back")
	c.mu.Lock()
	c.store.Remove(rec.Key())
	c.mu.Unlock()
	if cerr := c.cache.Delete(rec.Key()); cerr != nil {
		c.log.Warn().Err(cerr).Str("id", rec.Key()).Msg("snapshot delete failed")
	}
	c.stats.Error(ctx)
	p.settle(err)
}

// confirm replaces the optimistic entry with the canonical server copy. If a
// racing realtime event or local delete already settled the identifier, the
// later writer wins; confirm does not resurrect deliberately removed records.
func (c *collection[T]) confirm(ctx context.Context, canonical T) {
	c.mu.Lock()
	_, present := c.store.Get(canonical.Key())
	if present {
		c.store.Upsert(canonical)
	}
	c.mu.Unlock()
	if !present {
		return
	}
	if err := c.cache.Update(canonical); err != nil {
		c.log.Warn().Err(err).Str("id", canonical.Key()).Msg("snapshot write failed")
	}
}

// update replaces the record in place optimistically. A missing target is a
// silent no-op, not an error: updates racing deletes are expected.
func (c *collection[T]) update(ctx context.Context, rec T) (*Pending, error) {
	if v := c.check(rec); !v.OK {
		return nil, &ValidationError{Table: c.table, Problems: v.Problems}
	}

	c.mu.Lock()
	if _, ok := c.store.Get(rec.Key()); !ok {
		c.mu.Unlock()
		return settled(nil), nil
	}
	c.store.Upsert(rec)
	c.mu.Unlock()
	c.stats.Updated(ctx)
	if err := c.cache.Update(rec); err != nil {
		c.log.Warn().Err(err).Str("id", rec.Key()).Msg("snapshot write failed")
	}

	p := newPending()
	go c.remoteUpdate(context.WithoutCancel(ctx), rec, p)
	return p, nil
}

func (c *collection[T]) remoteUpdate(ctx context.Context, rec T, p *Pending) {
	canonical, err := c.repo.Update(ctx, rec, rec.Owner())
	if err == nil {
		c.confirm(ctx, canonical)
		p.settle(nil)
		return
	}

	// A failed update repairs the whole domain from the authoritative
	// store, discarding this and any other unconfirmed local state. This
	// is deliberately coarse; see the reload discussion in DESIGN.md.
	c.log.Warn().Err(err).Str("id", rec.Key()).Msg("update failed, reloading domain")
	c.stats.Error(ctx)
	if lerr := c.load(ctx, rec.Owner()); lerr != nil {
		c.log.Warn().Err(lerr).Msg("repair reload failed, optimistic state stands")
	}
	p.settle(err)
}

// remove deletes the record immediately and dispatches the remote delete.
// cascade, when set, runs under the same lock and returns a restore closure
// invoked if the remote call fails. A missing target is a silent no-op.
func (c *collection[T]) remove(ctx context.Context, id string, cascade func() func()) (*Pending, error) {
	c.mu.Lock()
	removed, ok := c.store.Remove(id)
	if !ok {
		c.mu.Unlock()
		return settled(nil), nil
	}
	var restore func()
	if cascade != nil {
		restore = cascade()
	}
	c.mu.Unlock()
	c.stats.Deleted(ctx)
	if err := c.cache.Delete(id); err != nil {
		c.log.Warn().Err(err).Str("id", id).Msg("snapshot delete failed")
	}

	p := newPending()
	go c.remoteDelete(context.WithoutCancel(ctx), removed, restore, p)
	return p, nil
}

func (c *collection[T]) remoteDelete(ctx context.Context, removed T, restore func(), p *Pending) {
	err := c.repo.Delete(ctx, removed.Key())
	if err == nil {
		p.settle(nil)
		return
	}

	c.log.Warn().Err(err).Str("id", removed.Key()).Msg("delete failed, restoring")
	c.mu.Lock()
	c.store.Upsert(removed)
	if restore != nil {
		restore()
	}
	c.mu.Unlock()
	if cerr := c.cache.Put(removed); cerr != nil {
		c.log.Warn().Err(cerr).Str("id", removed.Key()).Msg("snapshot write failed")
	}
	c.stats.Error(ctx)
	p.settle(err)
}

// bulkImport creates items sequentially. A failed item bumps the error
// counter through the usual rollback path and the import moves on; it never
// aborts partway. The returned Pending settles once every item has reached a
// terminal state, with the first failure as its outcome.
func (c *collection[T]) bulkImport(ctx context.Context, items []T, opts createOpts) *Pending {
	p := newPending()
	go func() {
		var firstErr error
		for _, item := range items {
			inner, err := c.create(ctx, item, opts)
			if err != nil {
				// Validation failures count as errors here: the item was
				// skipped, not silently accepted.
				c.stats.Error(ctx)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if werr := inner.Wait(ctx); werr != nil && firstErr == nil {
				firstErr = werr
			}
		}
		p.settle(firstErr)
	}()
	return p
}

// reconcile applies an externally pushed change with the same primitives as
// local mutation. There is no separate remote tier: the realtime feed and the
// local caller mutate the same store, serialized by the same lock. extra,
// when set, runs under the lock after the event is applied, for dependent-
// collection upkeep (cascades, detaches).
func (c *collection[T]) reconcile(ev realtime.Event[T], extra func()) {
	c.mu.Lock()
	switch ev.Action {
	case realtime.ActionInsert, realtime.ActionUpdate:
		c.store.Upsert(ev.Record)
	case realtime.ActionDelete:
		c.store.Remove(ev.ID)
	case realtime.ActionSync:
		c.store.Replace(ev.Records)
	}
	if extra != nil {
		extra()
	}
	c.mu.Unlock()

	// Mirror into the snapshot outside the lock's critical data, still
	// best-effort.
	switch ev.Action {
	case realtime.ActionInsert, realtime.ActionUpdate:
		if err := c.cache.Update(ev.Record); err != nil {
			c.log.Warn().Err(err).Msg("snapshot write failed")
		}
	case realtime.ActionDelete:
		if err := c.cache.Delete(ev.ID); err != nil {
			c.log.Warn().Err(err).Msg("snapshot delete failed")
		}
	case realtime.ActionSync:
		if err := c.cache.StoreAll(ev.Records); err != nil {
			c.log.Warn().Err(err).Msg("snapshot write failed")
		}
	}
}

// all returns the collection under the domain lock.
func (c *collection[T]) all() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.All()
}

// get returns one record under the domain lock.
func (c *collection[T]) get(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Get(id)
}
