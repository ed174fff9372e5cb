package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/VishalT25/companion-sync/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	table_name TEXT NOT NULL,
	id         TEXT NOT NULL,
	payload    BLOB NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (table_name, id)
);
`

// DB is one SQLite file shared by every table snapshot. Records are stored as
// JSON payloads keyed by (table, id); ordering on retrieval follows insertion
// time so a bootstrap reproduces the order the server last returned.
type DB struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (or creates) the snapshot database at path. Use ":memory:" in
// tests.
func Open(path string, log zerolog.Logger) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot cache: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize snapshot schema: %w", err)
	}
	return &DB{db: db, log: log}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error { return d.db.Close() }

// Snapshot is the typed per-table view managers hold.
type Snapshot[T models.Record] struct {
	d     *DB
	table string
}

// NewSnapshot returns the snapshot view for table.
func NewSnapshot[T models.Record](d *DB, table string) *Snapshot[T] {
	return &Snapshot[T]{d: d, table: table}
}

// StoreAll implements TableCache.
func (s *Snapshot[T]) StoreAll(items []T) error {
	tx, err := s.d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM snapshots WHERE table_name = ?`, s.table); err != nil {
		return fmt.Errorf("failed to clear %s snapshot: %w", s.table, err)
	}
	now := time.Now().UnixNano()
	for i, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to serialize %s record: %w", s.table, err)
		}
		// monotonic updated_at keeps retrieval in server order
		if _, err := tx.Exec(
			`INSERT INTO snapshots(table_name, id, payload, updated_at) VALUES (?,?,?,?)`,
			s.table, item.Key(), payload, now+int64(i),
		); err != nil {
			return fmt.Errorf("failed to write %s record: %w", s.table, err)
		}
	}
	return tx.Commit()
}

// Put implements TableCache.
func (s *Snapshot[T]) Put(item T) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to serialize %s record: %w", s.table, err)
	}
	_, err = s.d.db.Exec(
		`INSERT INTO snapshots(table_name, id, payload, updated_at) VALUES (?,?,?,?)
		 ON CONFLICT(table_name, id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		s.table, item.Key(), payload, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %s record: %w", s.table, err)
	}
	return nil
}

// Update implements TableCache.
func (s *Snapshot[T]) Update(item T) error { return s.Put(item) }

// Delete implements TableCache.
func (s *Snapshot[T]) Delete(id string) error {
	if _, err := s.d.db.Exec(
		`DELETE FROM snapshots WHERE table_name = ? AND id = ?`, s.table, id,
	); err != nil {
		return fmt.Errorf("failed to delete %s record: %w", s.table, err)
	}
	return nil
}

// Retrieve implements TableCache.
func (s *Snapshot[T]) Retrieve() ([]T, error) {
	rows, err := s.d.db.Query(
		`SELECT payload FROM snapshots WHERE table_name = ? ORDER BY updated_at, id`, s.table,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s snapshot: %w", s.table, err)
	}
	defer rows.Close()

	items := []T{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", s.table, err)
		}
		var item T
		if err := json.Unmarshal(payload, &item); err != nil {
			// A corrupt row must not poison the bootstrap; skip it.
			s.d.log.Warn().Err(err).Str("table", s.table).Msg("skipping unreadable snapshot record")
			continue
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
