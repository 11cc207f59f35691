package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/selfservice/pkg/models"
)

const loaderColumns = `id, name, prefix, key_hash, agent_name, expect_env, enabled, last_seen_at, created_at, updated_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) ListLoaders(ctx context.Context, namePrefix string) ([]*models.Loader, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+loaderColumns+` FROM loaders WHERE name LIKE $1 ESCAPE '\' ORDER BY name, created_at`,
		escapeLike(namePrefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("list loaders: %w", err)
	}
	return collectLoaders(rows)
}

func (s *PostgresStore) GetLoaderByName(ctx context.Context, name string) (*models.Loader, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+loaderColumns+` FROM loaders WHERE name = $1`, name)
	if err != nil {
		return nil, fmt.Errorf("get loader by name: %w", err)
	}
	loaders, err := collectLoaders(rows)
	if err != nil {
		return nil, err
	}
	if len(loaders) == 0 {
		return nil, ErrNotFound
	}
	return loaders[0], nil
}

func (s *PostgresStore) GetLoadersByPrefix(ctx context.Context, keyPrefix string) ([]*models.Loader, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+loaderColumns+` FROM loaders WHERE prefix = $1`, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("get loaders by prefix: %w", err)
	}
	return collectLoaders(rows)
}

func (s *PostgresStore) CreateLoader(ctx context.Context, l *models.Loader) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO loaders (id, name, prefix, key_hash, agent_name, expect_env, enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.Name, l.Prefix, l.KeyHash, l.AgentName, l.ExpectEnv, l.Enabled, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create loader: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetLoaderEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE loaders SET enabled = $2, updated_at = NOW() WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("set loader enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RekeyLoader replaces the loader's key and enables it in one statement.
func (s *PostgresStore) RekeyLoader(ctx context.Context, id uuid.UUID, keyPrefix, keyHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE loaders SET prefix = $2, key_hash = $3, enabled = TRUE, updated_at = NOW() WHERE id = $1`,
		id, keyPrefix, keyHash)
	if err != nil {
		return fmt.Errorf("rekey loader: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateLoaderLastSeen(ctx context.Context, id uuid.UUID, agentName string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE loaders SET last_seen_at = $3,
		   agent_name = CASE WHEN $2::text = '' THEN agent_name ELSE $2::text END,
		   updated_at = NOW()
		 WHERE id = $1`, id, agentName, at)
	if err != nil {
		return fmt.Errorf("update loader last seen: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectLoaders(rows pgx.Rows) ([]*models.Loader, error) {
	defer rows.Close()

	var loaders []*models.Loader
	for rows.Next() {
		var l models.Loader
		if err := rows.Scan(&l.ID, &l.Name, &l.Prefix, &l.KeyHash, &l.AgentName, &l.ExpectEnv,
			&l.Enabled, &l.LastSeen, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan loader: %w", err)
		}
		loaders = append(loaders, &l)
	}
	return loaders, rows.Err()
}

// escapeLike escapes LIKE metacharacters so s matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
