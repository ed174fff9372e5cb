package realtime

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	surrealdb "github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/VishalT25/companion-sync/pkg/models"
	"github.com/VishalT25/companion-sync/pkg/remote"
	"github.com/VishalT25/companion-sync/pkg/retry"
)

// LiveFeed subscribes an owner-scoped SurrealDB live query on one table and
// turns its notifications into typed events. After every successful
// subscription, the first and each reconnect alike, it emits one ActionSync event
// carrying a full ReadAll snapshot, so state missed while detached is
// replayed as a single replacement set.
type LiveFeed[T models.Record] struct {
	db    *surrealdb.DB
	repo  remote.Repository[T]
	table string
	owner models.UserID

	events chan Event[T]
	policy retry.Policy
	log    zerolog.Logger
}

// NewLiveFeed builds a feed for table scoped to owner. Events are buffered so
// a slow consumer does not stall the websocket reader.
func NewLiveFeed[T models.Record](
	db *surrealdb.DB,
	repo remote.Repository[T],
	table string,
	owner models.UserID,
	log zerolog.Logger,
) *LiveFeed[T] {
	return &LiveFeed[T]{
		db:     db,
		repo:   repo,
		table:  table,
		owner:  owner,
		events: make(chan Event[T], 128),
		policy: retry.NewBackoff(),
		log:    log.With().Str("table", table).Logger(),
	}
}

// Events returns the feed's event channel. It is closed when Run returns.
func (f *LiveFeed[T]) Events() <-chan Event[T] { return f.events }

// Run subscribes and pumps notifications until ctx is done. Lost connections
// are resubscribed under the feed's backoff policy; each resubscription is
// followed by a catch-up SYNC event.
func (f *LiveFeed[T]) Run(ctx context.Context) {
	defer close(f.events)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		notifications, err := f.subscribe(ctx)
		if err != nil {
			f.log.Warn().Err(err).Int("attempt", attempt).Msg("live subscription failed")
			delay, ok := f.policy.NextDelay(attempt, err)
			if !ok {
				f.log.Error().Msg("giving up on live subscription")
				return
			}
			attempt++
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		attempt = 0

		f.emitSync(ctx)
		if !f.pump(ctx, notifications) {
			return
		}
		f.log.Info().Msg("live notification channel closed, resubscribing")
	}
}

// subscribe issues an owner-scoped LIVE SELECT and returns its notification
// channel.
func (f *LiveFeed[T]) subscribe(ctx context.Context) (chan connection.Notification, error) {
	result, err := surrealdb.Query[surrealmodels.UUID](
		ctx, f.db,
		"LIVE SELECT * FROM type::table($table) WHERE owner_id = $owner",
		map[string]any{
			"table": f.table,
			"owner": f.owner.RecordID(),
		},
	)
	if err != nil {
		return nil, err
	}
	liveID := (*result)[0].Result
	return f.db.LiveNotifications(liveID.String())
}

// emitSync pushes a full replacement snapshot. A failed ReadAll is logged and
// skipped; the live stream still delivers subsequent changes.
func (f *LiveFeed[T]) emitSync(ctx context.Context) {
	records, err := f.repo.ReadAll(ctx, f.owner)
	if err != nil {
		f.log.Warn().Err(err).Msg("catch-up read failed, skipping sync event")
		return
	}
	f.deliver(ctx, Event[T]{Table: f.table, Action: ActionSync, Records: records})
}

// pump forwards notifications until the channel closes (false) or ctx ends
// (true means "stop for good").
func (f *LiveFeed[T]) pump(ctx context.Context, notifications chan connection.Notification) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case n, ok := <-notifications:
			if !ok {
				return true
			}
			f.handle(ctx, n)
		}
	}
}

func (f *LiveFeed[T]) handle(ctx context.Context, n connection.Notification) {
	rec, err := decodeRecord[T](n.Result)
	if err != nil {
		f.log.Warn().Err(err).Str("action", string(n.Action)).Msg("dropping undecodable notification")
		return
	}
	switch n.Action {
	case connection.CreateAction:
		f.deliver(ctx, Event[T]{Table: f.table, Action: ActionInsert, Record: rec})
	case connection.UpdateAction:
		f.deliver(ctx, Event[T]{Table: f.table, Action: ActionUpdate, Record: rec})
	case connection.DeleteAction:
		f.deliver(ctx, Event[T]{Table: f.table, Action: ActionDelete, ID: rec.Key()})
	default:
		f.log.Debug().Str("action", string(n.Action)).Msg("ignoring unknown notification action")
	}
}

func (f *LiveFeed[T]) deliver(ctx context.Context, ev Event[T]) {
	select {
	case f.events <- ev:
	case <-ctx.Done():
	}
}
