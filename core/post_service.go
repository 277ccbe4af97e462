package core

import (
	"context"
	"fmt"
)

// Listings always show ten posts per page.
const postsPerPage = 10

// ListScope selects the candidate set for a listing: the zero value is the
// global feed, otherwise exactly one of GroupSlug/Username is set.
type ListScope struct {
	GroupSlug string
	Username  string
}

// PostPage is one fixed-size slice of an ordered listing plus the metadata
// the templates need to render pagination controls.
type PostPage struct {
	Posts      []Post
	Number     int
	TotalItems int
	TotalPages int
	HasNext    bool
	HasPrev    bool

	// Scope context for the group and profile pages.
	Group          *Group
	AuthorUsername string
}

// PostResult is the outcome of a write operation: either field errors for the
// caller to re-render the form with, or a redirect target.
type PostResult struct {
	RedirectTo  string
	FieldErrors FieldErrors
}

// PostService implements post creation, editing, and listing with the
// authorization and pagination policy of the platform.
type PostService struct {
	posts  PostRepository
	groups GroupRepository
	users  UserRepository
}

func NewPostService(posts PostRepository, groups GroupRepository, users UserRepository) *PostService {
	return &PostService{posts: posts, groups: groups, users: users}
}

// CreatePost creates a post owned by actor. Anonymous actors are rejected
// before validation runs; validation failures leave the store untouched.
func (s *PostService) CreatePost(ctx context.Context, actor *User, form PostForm) (PostResult, error) {
	if actor == nil {
		return PostResult{}, ErrUnauthorized
	}

	values, fieldErrs, err := form.Validate(ctx, s.groups)
	if err != nil {
		return PostResult{}, err
	}
	if len(fieldErrs) > 0 {
		return PostResult{FieldErrors: fieldErrs}, nil
	}

	var groupID *int64
	if values.Group != nil {
		groupID = &values.Group.ID
	}
	if _, _, err := s.posts.Create(ctx, values.Text, actor.ID, groupID); err != nil {
		return PostResult{}, fmt.Errorf("failed to create post: %w", err)
	}
	return PostResult{RedirectTo: profilePath(actor.Username)}, nil
}

// EditPost mutates text and group of an existing post. Only the author may
// edit; any other actor is sent back to the detail page with no error and no
// mutation. Author and publication timestamp never change.
func (s *PostService) EditPost(ctx context.Context, actor *User, postID int64, form PostForm) (PostResult, error) {
	post, err := s.posts.Get(ctx, postID)
	if err != nil {
		return PostResult{}, err
	}

	if actor == nil || actor.ID != post.AuthorID {
		return PostResult{RedirectTo: postDetailPath(post.ID)}, nil
	}

	values, fieldErrs, err := form.Validate(ctx, s.groups)
	if err != nil {
		return PostResult{}, err
	}
	if len(fieldErrs) > 0 {
		return PostResult{FieldErrors: fieldErrs}, nil
	}

	var groupID *int64
	if values.Group != nil {
		groupID = &values.Group.ID
	}
	if err := s.posts.Update(ctx, post.ID, values.Text, groupID); err != nil {
		return PostResult{}, fmt.Errorf("failed to update post: %w", err)
	}
	return PostResult{RedirectTo: postDetailPath(post.ID)}, nil
}

// ListPosts resolves the scope, orders by publication time descending, and
// returns the requested 1-indexed page. A page past the end is empty, not an
// error.
func (s *PostService) ListPosts(ctx context.Context, scope ListScope, page int) (*PostPage, error) {
	if page <= 0 {
		page = 1
	}

	var filter PostFilter
	result := &PostPage{Number: page}

	switch {
	case scope.GroupSlug != "":
		group, err := s.groups.FindBySlug(ctx, scope.GroupSlug)
		if err != nil {
			return nil, err
		}
		filter.GroupID = &group.ID
		result.Group = group
	case scope.Username != "":
		author, err := s.users.FindByUsername(ctx, scope.Username)
		if err != nil {
			return nil, err
		}
		filter.AuthorID = &author.ID
		result.AuthorUsername = author.Username
	}

	posts, total, err := s.posts.List(ctx, filter, page, postsPerPage)
	if err != nil {
		return nil, err
	}

	result.Posts = posts
	result.TotalItems = total
	result.TotalPages = calcTotalPages(total, postsPerPage)
	result.HasPrev = page > 1
	result.HasNext = page < result.TotalPages
	return result, nil
}

// GetPostDetail returns the single post or ErrNotFound.
func (s *PostService) GetPostDetail(ctx context.Context, id int64) (*Post, error) {
	return s.posts.Get(ctx, id)
}

func calcTotalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

func profilePath(username string) string {
	return fmt.Sprintf("/profile/%s/", username)
}

func postDetailPath(id int64) string {
	return fmt.Sprintf("/posts/%d/", id)
}
