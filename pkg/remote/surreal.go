package remote

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"
	surrealdb "github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/VishalT25/companion-sync/pkg/models"
)

// Surreal is the SurrealDB-backed Repository for one table. Records marshal
// through the surrealcbor codec, so typed IDs land as RecordIDs and owner
// scoping uses record pointers rather than raw strings.
type Surreal[T models.Record] struct {
	db    *surrealdb.DB
	table string
	log   zerolog.Logger
}

// NewSurreal builds the repository for table on an established connection.
func NewSurreal[T models.Record](db *surrealdb.DB, table string, log zerolog.Logger) *Surreal[T] {
	return &Surreal[T]{db: db, table: table, log: log.With().Str("table", table).Logger()}
}

// Connect dials a SurrealDB endpoint over websocket with the surrealcbor
// codec, signs in when credentials are given, and selects the namespace and
// database. The returned handle is shared by every repository and the
// realtime feeds.
func Connect(ctx context.Context, endpoint, ns, database, user, pass string) (*surrealdb.DB, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse endpoint URL: %w", err)
	}

	conf := connection.NewConfig(u)
	// The codec matters: without surrealcbor, time.Time and RecordID values
	// marshal in shapes the backend rejects.
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec

	db, err := surrealdb.FromConnection(ctx, gorillaws.New(conf))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if user != "" && pass != "" {
		if _, err := db.SignIn(ctx, map[string]any{"user": user, "pass": pass}); err != nil {
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}
	if err := db.Use(ctx, ns, database); err != nil {
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}
	return db, nil
}

func (r *Surreal[T]) recordID(id string) surrealmodels.RecordID {
	return surrealmodels.RecordID{Table: r.table, ID: id}
}

// Create implements Repository.
func (r *Surreal[T]) Create(ctx context.Context, rec T, owner models.UserID) (T, error) {
	created, err := surrealdb.Create[T](ctx, r.db, r.table, rec)
	if err != nil {
		r.log.Debug().Err(err).Str("id", rec.Key()).Msg("remote create failed")
		var zero T
		return zero, classify("create", r.table, rec.Key(), err)
	}
	return *created, nil
}

// ReadAll implements Repository.
func (r *Surreal[T]) ReadAll(ctx context.Context, owner models.UserID) ([]T, error) {
	query := "SELECT * FROM type::table($table) WHERE owner_id = $owner ORDER BY created_at"
	params := map[string]any{
		"table": r.table,
		"owner": owner.RecordID(),
	}
	result, err := surrealdb.Query[[]T](ctx, r.db, query, params)
	if err != nil {
		r.log.Debug().Err(err).Msg("remote read failed")
		return nil, &NetworkError{Op: "readAll", Table: r.table, Err: err}
	}
	if result == nil || len(*result) == 0 {
		return []T{}, nil
	}
	records := (*result)[0].Result
	if records == nil {
		records = []T{}
	}
	return records, nil
}

// Update implements Repository.
func (r *Surreal[T]) Update(ctx context.Context, rec T, owner models.UserID) (T, error) {
	updated, err := surrealdb.Update[T](ctx, r.db, r.recordID(rec.Key()), rec)
	if err != nil {
		r.log.Debug().Err(err).Str("id", rec.Key()).Msg("remote update failed")
		var zero T
		return zero, classify("update", r.table, rec.Key(), err)
	}
	return *updated, nil
}

// Delete implements Repository.
func (r *Surreal[T]) Delete(ctx context.Context, id string) error {
	if _, err := surrealdb.Delete[T](ctx, r.db, r.recordID(id)); err != nil {
		r.log.Debug().Err(err).Str("id", id).Msg("remote delete failed")
		return classify("delete", r.table, id, err)
	}
	return nil
}

// Exists implements Repository.
func (r *Surreal[T]) Exists(ctx context.Context, id string) (bool, error) {
	rec, err := surrealdb.Select[T](ctx, r.db, r.recordID(id))
	if err != nil {
		if IsNotFound(classify("select", r.table, id, err)) {
			return false, nil
		}
		return false, &NetworkError{Op: "select", Table: r.table, Err: err}
	}
	return rec != nil, nil
}
