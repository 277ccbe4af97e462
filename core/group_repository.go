package core

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Group is a named topic that posts may belong to. The slug is the unique
// URL-safe identifier and is immutable once set.
type Group struct {
	ID          int64
	Title       string
	Slug        string
	Description string
}

// GroupRepository defines persistence operations for groups. Groups are
// created by the seed process only; the post service reads them.
type GroupRepository interface {
	FindBySlug(ctx context.Context, slug string) (*Group, error)
	FindByID(ctx context.Context, id int64) (*Group, error)
	List(ctx context.Context) ([]Group, error)
	Upsert(ctx context.Context, g Group) (int64, error)
}

// PgGroupRepository implements GroupRepository using pgxpool.
type PgGroupRepository struct {
	db *pgxpool.Pool
}

func NewPgGroupRepository(db *pgxpool.Pool) *PgGroupRepository {
	return &PgGroupRepository{db: db}
}

func (r *PgGroupRepository) FindBySlug(ctx context.Context, slug string) (*Group, error) {
	const q = `SELECT id, title, slug, description FROM groups WHERE slug=$1`
	return r.scanOne(r.db.QueryRow(ctx, q, slug))
}

func (r *PgGroupRepository) FindByID(ctx context.Context, id int64) (*Group, error) {
	const q = `SELECT id, title, slug, description FROM groups WHERE id=$1`
	return r.scanOne(r.db.QueryRow(ctx, q, id))
}

func (r *PgGroupRepository) scanOne(row pgx.Row) (*Group, error) {
	var g Group
	if err := row.Scan(&g.ID, &g.Title, &g.Slug, &g.Description); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (r *PgGroupRepository) List(ctx context.Context) ([]Group, error) {
	rows, err := r.db.Query(ctx, `SELECT id, title, slug, description FROM groups ORDER BY title, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Title, &g.Slug, &g.Description); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Upsert inserts a group or updates title/description of an existing slug.
// The slug itself is never rewritten.
func (r *PgGroupRepository) Upsert(ctx context.Context, g Group) (int64, error) {
	const q = `
INSERT INTO groups (title, slug, description) VALUES ($1,$2,$3)
ON CONFLICT (slug) DO UPDATE SET title=EXCLUDED.title, description=EXCLUDED.description
RETURNING id
`
	var id int64
	if err := r.db.QueryRow(ctx, q, g.Title, g.Slug, g.Description).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
