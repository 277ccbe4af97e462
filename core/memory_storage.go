package core

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory-backed repositories for the "memory" storage mode. They back local
// development without Postgres and the test suites. Semantics mirror the Pg
// implementations, including ordering and ErrNotFound mapping.

// MemoryUserRepository implements UserRepository in process memory.
type MemoryUserRepository struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]*UserRecord
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*UserRecord)}
}

func (r *MemoryUserRepository) FindByUsername(_ context.Context, username string) (*UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryUserRepository) Create(_ context.Context, username, passwordHash, role string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[username]; ok {
		return 0, errDuplicate("username", username)
	}
	r.nextID++
	r.users[username] = &UserRecord{
		ID:           r.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now(),
	}
	return r.nextID, nil
}

func (r *MemoryUserRepository) HasAdmin(_ context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Role == "admin" {
			return true, nil
		}
	}
	return false, nil
}

// MemoryGroupRepository implements GroupRepository in process memory.
type MemoryGroupRepository struct {
	mu     sync.Mutex
	nextID int64
	groups []*Group
}

func NewMemoryGroupRepository() *MemoryGroupRepository {
	return &MemoryGroupRepository{}
}

func (r *MemoryGroupRepository) FindBySlug(_ context.Context, slug string) (*Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		if g.Slug == slug {
			cp := *g
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryGroupRepository) FindByID(_ context.Context, id int64) (*Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		if g.ID == id {
			cp := *g
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryGroupRepository) List(_ context.Context) ([]Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryGroupRepository) Upsert(_ context.Context, g Group) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.groups {
		if existing.Slug == g.Slug {
			existing.Title = g.Title
			existing.Description = g.Description
			return existing.ID, nil
		}
	}
	r.nextID++
	g.ID = r.nextID
	r.groups = append(r.groups, &g)
	return g.ID, nil
}

// MemoryPostRepository implements PostRepository in process memory. It joins
// author usernames and groups at read time the way the SQL queries do.
type MemoryPostRepository struct {
	mu     sync.Mutex
	nextID int64
	posts  []*Post
	users  *MemoryUserRepository
	groups *MemoryGroupRepository
}

func NewMemoryPostRepository(users *MemoryUserRepository, groups *MemoryGroupRepository) *MemoryPostRepository {
	return &MemoryPostRepository{users: users, groups: groups}
}

func (r *MemoryPostRepository) Create(ctx context.Context, text string, authorID int64, groupID *int64) (int64, time.Time, error) {
	username, err := r.usernameByID(authorID)
	if err != nil {
		return 0, time.Time{}, err
	}
	var group *Group
	if groupID != nil {
		group, err = r.groups.FindByID(ctx, *groupID)
		if err != nil {
			return 0, time.Time{}, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	p := &Post{
		ID:             r.nextID,
		Text:           text,
		AuthorID:       authorID,
		AuthorUsername: username,
		Group:          group,
		PubDate:        time.Now(),
	}
	r.posts = append(r.posts, p)
	return p.ID, p.PubDate, nil
}

func (r *MemoryPostRepository) Update(ctx context.Context, id int64, text string, groupID *int64) error {
	var group *Group
	if groupID != nil {
		var err error
		group, err = r.groups.FindByID(ctx, *groupID)
		if err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.ID == id {
			p.Text = text
			p.Group = group
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryPostRepository) Get(_ context.Context, id int64) (*Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryPostRepository) List(_ context.Context, f PostFilter, page, perPage int) ([]Post, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errInvalidPagination
	}

	r.mu.Lock()
	var matched []Post
	for _, p := range r.posts {
		if f.AuthorID != nil && p.AuthorID != *f.AuthorID {
			continue
		}
		if f.GroupID != nil && (p.Group == nil || p.Group.ID != *f.GroupID) {
			continue
		}
		matched = append(matched, *p)
	}
	r.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].PubDate.Equal(matched[j].PubDate) {
			return matched[i].PubDate.After(matched[j].PubDate)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := (page - 1) * perPage
	if start >= total {
		return []Post{}, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *MemoryPostRepository) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.posts), nil
}

func (r *MemoryPostRepository) usernameByID(id int64) (string, error) {
	r.users.mu.Lock()
	defer r.users.mu.Unlock()
	for _, u := range r.users.users {
		if u.ID == id {
			return u.Username, nil
		}
	}
	return "", ErrNotFound
}
