package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Post is a single unit of user content. Author and PubDate are set at
// creation and never change; edits touch Text and Group only.
type Post struct {
	ID             int64
	Text           string
	AuthorID       int64
	AuthorUsername string
	Group          *Group // nil means ungrouped
	PubDate        time.Time
}

// PostFilter narrows a listing to one author or one group. Zero value means
// the global feed.
type PostFilter struct {
	AuthorID *int64
	GroupID  *int64
}

// PostRepository defines persistence operations for posts. Listings are
// ordered by pub_date descending, ties broken by id descending.
type PostRepository interface {
	Create(ctx context.Context, text string, authorID int64, groupID *int64) (int64, time.Time, error)
	Update(ctx context.Context, id int64, text string, groupID *int64) error
	Get(ctx context.Context, id int64) (*Post, error)
	List(ctx context.Context, f PostFilter, page, perPage int) ([]Post, int, error)
	Count(ctx context.Context) (int, error)
}

// PgPostRepository implements PostRepository using pgxpool.
type PgPostRepository struct {
	db *pgxpool.Pool
}

func NewPgPostRepository(db *pgxpool.Pool) *PgPostRepository {
	return &PgPostRepository{db: db}
}

func (r *PgPostRepository) Create(ctx context.Context, text string, authorID int64, groupID *int64) (int64, time.Time, error) {
	const q = `INSERT INTO posts (text, author_id, group_id) VALUES ($1,$2,$3) RETURNING id, pub_date`
	var id int64
	var pubDate time.Time
	if err := r.db.QueryRow(ctx, q, text, authorID, groupID).Scan(&id, &pubDate); err != nil {
		return 0, time.Time{}, err
	}
	return id, pubDate, nil
}

// Update rewrites text and group only; author_id and pub_date stay untouched.
func (r *PgPostRepository) Update(ctx context.Context, id int64, text string, groupID *int64) error {
	const q = `UPDATE posts SET text=$1, group_id=$2 WHERE id=$3`
	tag, err := r.db.Exec(ctx, q, text, groupID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const postSelect = `
SELECT p.id, p.text, p.pub_date,
       u.id, u.username,
       g.id, g.title, g.slug, g.description
FROM posts p
JOIN users u ON u.id = p.author_id
LEFT JOIN groups g ON g.id = p.group_id
`

func (r *PgPostRepository) Get(ctx context.Context, id int64) (*Post, error) {
	row := r.db.QueryRow(ctx, postSelect+`WHERE p.id=$1`, id)
	p, err := scanPost(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *PgPostRepository) List(ctx context.Context, f PostFilter, page, perPage int) ([]Post, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}

	var conds []string
	var args []any
	if f.AuthorID != nil {
		args = append(args, *f.AuthorID)
		conds = append(conds, fmt.Sprintf("p.author_id=$%d", len(args)))
	}
	if f.GroupID != nil {
		args = append(args, *f.GroupID)
		conds = append(conds, fmt.Sprintf("p.group_id=$%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQ := fmt.Sprintf(`SELECT COUNT(*) FROM posts p %s`, where)
	if err := r.db.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, perPage, (page-1)*perPage)
	listQ := fmt.Sprintf(`%s %s ORDER BY p.pub_date DESC, p.id DESC LIMIT $%d OFFSET $%d`,
		postSelect, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, listQ, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]Post, 0, perPage)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *p)
	}
	return items, total, rows.Err()
}

func (r *PgPostRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func scanPost(row pgx.Row) (*Post, error) {
	var p Post
	var gid *int64
	var gtitle, gslug, gdesc *string
	if err := row.Scan(&p.ID, &p.Text, &p.PubDate, &p.AuthorID, &p.AuthorUsername, &gid, &gtitle, &gslug, &gdesc); err != nil {
		return nil, err
	}
	if gid != nil {
		p.Group = &Group{ID: *gid, Title: *gtitle, Slug: *gslug, Description: *gdesc}
	}
	return &p, nil
}
