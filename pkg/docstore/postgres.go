package docstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type PostgresConfig struct {
	DSN             string        `envconfig:"DSN" split_words:"true" required:"true"`
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"25"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" split_words:"true" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" split_words:"true" default:"5m"`
}

// PostgresStore keeps every collection in a single jsonb table.
type PostgresStore struct {
	db *bun.DB
}

var _ Store = (*PostgresStore)(nil)

// documentRow is the scan target for document queries.
type documentRow struct {
	bun.BaseModel `bun:"table:documents"`

	ID      string          `bun:"id"`
	Version int64           `bun:"version"`
	Data    json.RawMessage `bun:"data,type:jsonb"`
}

// NewPostgresStore connects, configures the pool and applies pending
// migrations.
func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqldb.Ping(); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(sqldb); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewPostgresStoreFromDB(sqldb), nil
}

// NewPostgresStoreFromDB wraps an open connection without migrating it.
func NewPostgresStoreFromDB(sqldb *sql.DB) *PostgresStore {
	return &PostgresStore{db: bun.NewDB(sqldb, pgdialect.New())}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Collection(name string) Collection {
	return &postgresCollection{db: s.db, name: name}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type postgresCollection struct {
	db   *bun.DB
	name string
}

func (c *postgresCollection) List(ctx context.Context) ([]Document, error) {
	var rows []documentRow
	err := c.db.NewRaw(
		"SELECT id, version, data FROM documents WHERE collection = ? ORDER BY seq",
		c.name,
	).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.name, err)
	}
	return rowsToDocuments(rows), nil
}

func (c *postgresCollection) FindByID(ctx context.Context, id string) (Document, error) {
	if err := validateID(id); err != nil {
		return Document{}, err
	}
	var rows []documentRow
	err := c.db.NewRaw(
		"SELECT id, version, data FROM documents WHERE collection = ? AND id = ?",
		c.name, id,
	).Scan(ctx, &rows)
	if err != nil {
		return Document{}, fmt.Errorf("find %s/%s: %w", c.name, id, err)
	}
	if len(rows) == 0 {
		return Document{}, ErrNotFound
	}
	return rowsToDocuments(rows)[0], nil
}

func (c *postgresCollection) FindByField(ctx context.Context, field, value string) ([]Document, error) {
	var rows []documentRow
	err := c.db.NewRaw(
		"SELECT id, version, data FROM documents WHERE collection = ? AND data->>? = ? ORDER BY seq",
		c.name, field, value,
	).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("find %s by %s: %w", c.name, field, err)
	}
	return rowsToDocuments(rows), nil
}

func (c *postgresCollection) Insert(ctx context.Context, id string, data json.RawMessage) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateBody(data); err != nil {
		return err
	}
	res, err := c.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, version, data) VALUES (?, ?, 1, ?::jsonb) ON CONFLICT (collection, id) DO NOTHING",
		c.name, id, string(data),
	)
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", c.name, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", c.name, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrDuplicate, c.name, id)
	}
	return nil
}

// Update compares and swaps on version, retrying when another writer won.
func (c *postgresCollection) Update(ctx context.Context, id string, mutate Mutator) error {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		doc, err := c.FindByID(ctx, id)
		if err != nil {
			return err
		}
		next, err := mutate(cloneRaw(doc.Data))
		if err != nil {
			return err
		}
		if err := validateBody(next); err != nil {
			return err
		}

		res, err := c.db.ExecContext(ctx,
			"UPDATE documents SET data = ?::jsonb, version = version + 1, updated_at = now() WHERE collection = ? AND id = ? AND version = ?",
			string(next), c.name, id, doc.Version,
		)
		if err != nil {
			return fmt.Errorf("update %s/%s: %w", c.name, id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update %s/%s: %w", c.name, id, err)
		}
		if n == 1 {
			return nil
		}
	}
	return fmt.Errorf("%w: %s/%s", ErrConflict, c.name, id)
}

func rowsToDocuments(rows []documentRow) []Document {
	out := make([]Document, 0, len(rows))
	for _, r := range rows {
		out = append(out, Document{ID: r.ID, Version: r.Version, Data: r.Data})
	}
	return out
}
