// internal/storage/postgres.go
// PostgreSQL implementation of the Store and StatisticsStore interfaces.
// Documents are kept as JSONB bodies next to the fields the service manages.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/julioonmartinez/lulinks-api/internal/model"
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations
const pgUniqueViolation = "23505"

// Postgres provides persistent storage for resources and statistics.
type Postgres struct {
	db *pgxpool.Pool // Connection pool to PostgreSQL database
}

// NewPostgres creates a new PostgreSQL storage implementation.
// It establishes a connection pool to the database and initializes the schema.
// Parameters:
//   - dsn: Database connection string in PostgreSQL format
func NewPostgres(dsn string) (*Postgres, error) {
	// Parse the database connection string
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	// Establish connection with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Postgres{db: pool}, nil
}

// initSchema creates all required tables and indexes if they don't already exist.
func initSchema(ctx context.Context, db *pgxpool.Pool) error {
	schema := `
		-- Documents of every kind; nested kinds carry their profile in parent_id
		CREATE TABLE IF NOT EXISTS resources (
		    kind TEXT NOT NULL,                      -- profile, link, style, widget, user
		    parent_id TEXT NOT NULL DEFAULT '',      -- Owning profile for nested kinds
		    id TEXT NOT NULL,                        -- Document id (ulid, or uid for users)
		    created_by TEXT NOT NULL DEFAULT '',     -- Creating principal; empty on legacy rows
		    unique_key TEXT,                         -- Normalized unique value (profile userName)
		    data JSONB NOT NULL DEFAULT '{}'::jsonb, -- Client supplied body
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    PRIMARY KEY (kind, parent_id, id)
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_resources_unique_key ON resources(kind, unique_key) WHERE unique_key IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_resources_listing ON resources(kind, parent_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_resources_data ON resources USING GIN (data jsonb_path_ops);

		-- One counter row per (profile, widget); widget_id '' is the profile-level record
		CREATE TABLE IF NOT EXISTS statistics (
		    id TEXT PRIMARY KEY,
		    profile_id TEXT NOT NULL,
		    widget_id TEXT NOT NULL DEFAULT '',
		    views BIGINT NOT NULL DEFAULT 0,
		    clicks BIGINT NOT NULL DEFAULT 0,
		    unique_views BIGINT NOT NULL DEFAULT 0,
		    unique_ids TEXT[] NOT NULL DEFAULT '{}',
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    UNIQUE (profile_id, widget_id)
		);
	`

	_, err := db.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool
func (p *Postgres) Close() {
	p.db.Close()
}

// Ping checks database connectivity
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

// nullableKey stores an empty unique key as NULL so the partial index ignores it
func nullableKey(key string) interface{} {
	if key == "" {
		return nil
	}
	return key
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// CreateResource inserts a new document
func (p *Postgres) CreateResource(ctx context.Context, r model.Resource) error {
	body, err := json.Marshal(bodyOrEmpty(r.Data))
	if err != nil {
		return fmt.Errorf("failed to marshal resource body: %w", err)
	}

	query := `INSERT INTO resources (kind, parent_id, id, created_by, unique_key, data, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = p.db.Exec(ctx, query,
		string(r.Kind),
		r.ParentID,
		r.ID,
		r.CreatedBy,
		nullableKey(r.UniqueKey),
		body,
		r.CreatedAt,
		r.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create resource: %w", err)
	}
	return nil
}

const resourceColumns = `kind, parent_id, id, created_by, COALESCE(unique_key, ''), data, created_at, updated_at`

// scanResource reads one row selected with resourceColumns
func scanResource(row pgx.Row) (*model.Resource, error) {
	var (
		r    model.Resource
		kind string
		body []byte
	)
	if err := row.Scan(&kind, &r.ParentID, &r.ID, &r.CreatedBy, &r.UniqueKey, &body, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Kind = model.Kind(kind)
	if err := json.Unmarshal(body, &r.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resource body: %w", err)
	}
	if r.Data == nil {
		r.Data = map[string]interface{}{}
	}
	return &r, nil
}

// GetResource retrieves a document by address
func (p *Postgres) GetResource(ctx context.Context, ref model.Ref) (*model.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE kind = $1 AND parent_id = $2 AND id = $3`
	r, err := scanResource(p.db.QueryRow(ctx, query, string(ref.Kind), ref.ParentID, ref.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return r, nil
}

// ListResources lists documents of one collection, oldest first
func (p *Postgres) ListResources(ctx context.Context, q model.ListQuery) ([]model.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE kind = $1 AND parent_id = $2`
	args := []interface{}{string(q.Kind), q.ParentID}
	argIndex := 3

	if q.UniqueKey != "" {
		query += fmt.Sprintf(" AND unique_key = $%d", argIndex)
		args = append(args, q.UniqueKey)
		argIndex++
	}

	// Equality on a body field is expressed as JSONB containment so the GIN index applies
	if q.Field != "" {
		filter, err := json.Marshal(map[string]interface{}{q.Field: q.Value})
		if err != nil {
			return nil, fmt.Errorf("invalid filter value: %w", err)
		}
		query += fmt.Sprintf(" AND data @> $%d::jsonb", argIndex)
		args = append(args, filter)
		argIndex++
	}

	query += " ORDER BY created_at ASC, id ASC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, q.Limit)
	}

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	out := make([]model.Resource, 0)
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resources: %w", err)
	}
	return out, nil
}

// UpdateResource replaces the body of an existing document.
// created_by and created_at are not part of the SET list.
func (p *Postgres) UpdateResource(ctx context.Context, r model.Resource) error {
	body, err := json.Marshal(bodyOrEmpty(r.Data))
	if err != nil {
		return fmt.Errorf("failed to marshal resource body: %w", err)
	}

	query := `UPDATE resources SET data = $1, unique_key = $2, updated_at = $3
	          WHERE kind = $4 AND parent_id = $5 AND id = $6`
	result, err := p.db.Exec(ctx, query, body, nullableKey(r.UniqueKey), r.UpdatedAt, string(r.Kind), r.ParentID, r.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to update resource: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteResource removes a document; profiles take their subcollections with them
func (p *Postgres) DeleteResource(ctx context.Context, ref model.Ref) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `DELETE FROM resources WHERE kind = $1 AND parent_id = $2 AND id = $3`,
		string(ref.Kind), ref.ParentID, ref.ID)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	if ref.Kind == model.KindProfile {
		kinds := make([]string, 0, len(model.ChildKinds))
		for _, k := range model.ChildKinds {
			kinds = append(kinds, string(k))
		}
		if _, err := tx.Exec(ctx, `DELETE FROM resources WHERE parent_id = $1 AND kind = ANY($2)`, ref.ID, kinds); err != nil {
			return fmt.Errorf("failed to delete profile children: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func bodyOrEmpty(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return map[string]interface{}{}
	}
	return data
}

const statisticsColumns = `id, profile_id, widget_id, views, clicks, unique_views, unique_ids, created_at, updated_at`

func scanStatistics(row pgx.Row) (*model.Statistics, error) {
	var s model.Statistics
	if err := row.Scan(&s.ID, &s.ProfileID, &s.WidgetID, &s.Views, &s.Clicks, &s.UniqueViews, &s.UniqueIDs, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if s.UniqueIDs == nil {
		s.UniqueIDs = []string{}
	}
	return &s, nil
}

// RecordStatistics merges an event inside a transaction holding the row lock.
// A concurrent first insert for the same key surfaces as a unique violation,
// in which case the transaction is retried and takes the update path.
func (p *Postgres) RecordStatistics(ctx context.Context, ev model.StatisticsEvent, now time.Time) (*model.Statistics, error) {
	const attempts = 3
	var lastErr error
	for i := 0; i < attempts; i++ {
		s, err := p.recordStatisticsTx(ctx, ev, now)
		if err == nil {
			return s, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed to record statistics after %d attempts: %w", attempts, lastErr)
}

func (p *Postgres) recordStatisticsTx(ctx context.Context, ev model.StatisticsEvent, now time.Time) (*model.Statistics, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanStatistics(tx.QueryRow(ctx,
		`SELECT `+statisticsColumns+` FROM statistics WHERE profile_id = $1 AND widget_id = $2 FOR UPDATE`,
		ev.Key.ProfileID, ev.Key.WidgetID))

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		created := model.NewStatistics(NewID(), ev, now)
		_, err = tx.Exec(ctx,
			`INSERT INTO statistics (`+statisticsColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			created.ID, created.ProfileID, created.WidgetID, created.Views, created.Clicks,
			created.UniqueViews, created.UniqueIDs, created.CreatedAt, created.UpdatedAt)
		if err != nil {
			return nil, err
		}
		current = &created
	case err != nil:
		return nil, fmt.Errorf("failed to read statistics: %w", err)
	default:
		current.Apply(ev, now)
		_, err = tx.Exec(ctx,
			`UPDATE statistics SET views = $1, clicks = $2, unique_views = $3, unique_ids = $4, updated_at = $5 WHERE id = $6`,
			current.Views, current.Clicks, current.UniqueViews, current.UniqueIDs, current.UpdatedAt, current.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to update statistics: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return current, nil
}

// GetStatistics retrieves the record for a composite key
func (p *Postgres) GetStatistics(ctx context.Context, key model.StatisticsKey) (*model.Statistics, error) {
	s, err := scanStatistics(p.db.QueryRow(ctx,
		`SELECT `+statisticsColumns+` FROM statistics WHERE profile_id = $1 AND widget_id = $2`,
		key.ProfileID, key.WidgetID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}
	return s, nil
}
