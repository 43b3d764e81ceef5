package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"evidenced/pkg/db"
)

// PostgresRepository stores evidence records in the evidence table. The
// record identifier is assigned here, on insert.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository wraps an open connection pool.
func NewPostgresRepository(pool *pgxpool.Pool) (*PostgresRepository, error) {
	if pool == nil {
		return nil, errors.New("nil pool")
	}
	return &PostgresRepository{pool: pool}, nil
}

// Insert persists a new evidence record and returns its assigned identifier.
func (r *PostgresRepository) Insert(ctx context.Context, ev Evidence) (uuid.UUID, error) {
	query := `
        INSERT INTO evidence (id, filename, name, description, s3_key, sha256, infected, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id;
    `

	var id uuid.UUID
	err := db.Get(ctx, r.pool, &id, query,
		uuid.New(), ev.Filename, ev.Name, ev.Description, ev.S3Key, ev.SHA256, ev.Infected, time.Now().UTC())
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert evidence: %w", err)
	}
	return id, nil
}

// FindByID retrieves a record by identifier, reporting absence with
// ErrNotFound so callers can distinguish a missing record from a failed read.
func (r *PostgresRepository) FindByID(ctx context.Context, id uuid.UUID) (Evidence, error) {
	query := `
        SELECT id, filename, name, description, s3_key, sha256, infected, created_at
        FROM evidence
        WHERE id = $1;
    `

	var ev Evidence
	if err := db.Get(ctx, r.pool, &ev, query, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Evidence{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Evidence{}, fmt.Errorf("find evidence %s: %w", id, err)
	}
	return ev, nil
}

// AuditLog appends operational events to the audit table. Writes are
// best-effort; the pipeline logs failures and moves on.
type AuditLog struct {
	pool *pgxpool.Pool
}

// NewAuditLog wraps an open connection pool.
func NewAuditLog(pool *pgxpool.Pool) (*AuditLog, error) {
	if pool == nil {
		return nil, errors.New("nil pool")
	}
	return &AuditLog{pool: pool}, nil
}

// Record appends one audit row.
func (a *AuditLog) Record(ctx context.Context, action, obj string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	query := `
        INSERT INTO audit (action, obj, details, at)
        VALUES ($1, $2, $3::jsonb, $4);
    `

	if _, err := db.Exec(ctx, a.pool, query, action, obj, string(payload), time.Now().UTC()); err != nil {
		return fmt.Errorf("insert audit row: %w", err)
	}
	return nil
}
