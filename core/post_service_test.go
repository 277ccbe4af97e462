package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
)

type serviceEnv struct {
	users  *MemoryUserRepository
	groups *MemoryGroupRepository
	posts  *MemoryPostRepository
	svc    *PostService
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	users := NewMemoryUserRepository()
	groups := NewMemoryGroupRepository()
	posts := NewMemoryPostRepository(users, groups)
	return &serviceEnv{
		users:  users,
		groups: groups,
		posts:  posts,
		svc:    NewPostService(posts, groups, users),
	}
}

func (e *serviceEnv) addUser(t *testing.T, username string) *User {
	t.Helper()
	id, err := e.users.Create(context.Background(), username, "x", "user")
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return &User{ID: id, Username: username, Role: "user"}
}

func (e *serviceEnv) postCount(t *testing.T) int {
	t.Helper()
	n, err := e.posts.Count(context.Background())
	if err != nil {
		t.Fatalf("count posts: %v", err)
	}
	return n
}

func TestCreatePostIncreasesCountByOne(t *testing.T) {
	env := newServiceEnv(t)
	actor := env.addUser(t, "auth")
	group := seedGroup(t, env.groups)

	before := env.postCount(t)
	res, err := env.svc.CreatePost(context.Background(), actor, PostForm{
		Text:    "Текст из формы",
		GroupID: strconv.FormatInt(group.ID, 10),
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if len(res.FieldErrors) != 0 {
		t.Fatalf("unexpected field errors: %v", res.FieldErrors)
	}
	if got := env.postCount(t); got != before+1 {
		t.Fatalf("post count = %d, want %d", got, before+1)
	}
	if res.RedirectTo != "/profile/auth/" {
		t.Fatalf("redirect = %q, want /profile/auth/", res.RedirectTo)
	}

	page, err := env.svc.ListPosts(context.Background(), ListScope{}, 1)
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	created := page.Posts[0]
	if created.AuthorID != actor.ID || created.AuthorUsername != "auth" {
		t.Fatalf("author = %d/%s, want %d/auth", created.AuthorID, created.AuthorUsername, actor.ID)
	}
	if created.Group == nil || created.Group.ID != group.ID {
		t.Fatalf("group = %+v, want id %d", created.Group, group.ID)
	}
	if created.Text != "Текст из формы" {
		t.Fatalf("text = %q", created.Text)
	}
	if created.PubDate.IsZero() {
		t.Fatal("pub date not assigned")
	}
}

func TestCreatePostAnonymousUnauthorized(t *testing.T) {
	env := newServiceEnv(t)
	seedGroup(t, env.groups)

	before := env.postCount(t)
	_, err := env.svc.CreatePost(context.Background(), nil, PostForm{Text: "валидный текст"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if got := env.postCount(t); got != before {
		t.Fatalf("post count changed: %d -> %d", before, got)
	}
}

func TestCreatePostEmptyTextNoMutation(t *testing.T) {
	env := newServiceEnv(t)
	actor := env.addUser(t, "auth")

	res, err := env.svc.CreatePost(context.Background(), actor, PostForm{Text: "   "})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if res.FieldErrors[fieldText] == "" {
		t.Fatalf("expected empty-text error, got %v", res.FieldErrors)
	}
	if got := env.postCount(t); got != 0 {
		t.Fatalf("post count = %d, want 0", got)
	}
}

func TestCreatePostUnknownGroupNoMutation(t *testing.T) {
	env := newServiceEnv(t)
	actor := env.addUser(t, "auth")

	res, err := env.svc.CreatePost(context.Background(), actor, PostForm{Text: "текст", GroupID: "404"})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if res.FieldErrors[fieldGroup] == "" {
		t.Fatalf("expected unknown-group error, got %v", res.FieldErrors)
	}
	if got := env.postCount(t); got != 0 {
		t.Fatalf("post count = %d, want 0", got)
	}
}

func TestEditPostByAuthor(t *testing.T) {
	env := newServiceEnv(t)
	actor := env.addUser(t, "auth")
	group := seedGroup(t, env.groups)

	id, pubDate, err := env.posts.Create(context.Background(), "Тестовый пост", actor.ID, nil)
	if err != nil {
		t.Fatalf("seed post: %v", err)
	}

	res, err := env.svc.EditPost(context.Background(), actor, id, PostForm{
		Text:    "Измененный текст формы",
		GroupID: strconv.FormatInt(group.ID, 10),
	})
	if err != nil {
		t.Fatalf("edit post: %v", err)
	}
	if len(res.FieldErrors) != 0 {
		t.Fatalf("unexpected field errors: %v", res.FieldErrors)
	}
	if want := fmt.Sprintf("/posts/%d/", id); res.RedirectTo != want {
		t.Fatalf("redirect = %q, want %q", res.RedirectTo, want)
	}

	post, err := env.svc.GetPostDetail(context.Background(), id)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if post.Text != "Измененный текст формы" {
		t.Fatalf("text = %q", post.Text)
	}
	if post.Group == nil || post.Group.ID != group.ID {
		t.Fatalf("group = %+v", post.Group)
	}
	if post.AuthorID != actor.ID {
		t.Fatalf("author changed: %d", post.AuthorID)
	}
	if !post.PubDate.Equal(pubDate) {
		t.Fatalf("pub date changed: %v -> %v", pubDate, post.PubDate)
	}
}

func TestEditPostByNonAuthorSilentlyRefused(t *testing.T) {
	env := newServiceEnv(t)
	author := env.addUser(t, "auth")
	stranger := env.addUser(t, "noname")

	id, _, err := env.posts.Create(context.Background(), "Тестовый пост", author.ID, nil)
	if err != nil {
		t.Fatalf("seed post: %v", err)
	}

	res, err := env.svc.EditPost(context.Background(), stranger, id, PostForm{Text: "X"})
	if err != nil {
		t.Fatalf("edit post: %v", err)
	}
	if want := fmt.Sprintf("/posts/%d/", id); res.RedirectTo != want {
		t.Fatalf("redirect = %q, want %q", res.RedirectTo, want)
	}

	post, err := env.svc.GetPostDetail(context.Background(), id)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if post.Text != "Тестовый пост" {
		t.Fatalf("non-author edit mutated text: %q", post.Text)
	}
}

func TestEditPostAnonymousSilentlyRefused(t *testing.T) {
	env := newServiceEnv(t)
	author := env.addUser(t, "auth")

	id, _, err := env.posts.Create(context.Background(), "Тестовый пост", author.ID, nil)
	if err != nil {
		t.Fatalf("seed post: %v", err)
	}

	res, err := env.svc.EditPost(context.Background(), nil, id, PostForm{Text: "X"})
	if err != nil {
		t.Fatalf("edit post: %v", err)
	}
	if want := fmt.Sprintf("/posts/%d/", id); res.RedirectTo != want {
		t.Fatalf("redirect = %q, want %q", res.RedirectTo, want)
	}
}

func TestEditPostEmptyTextNoMutation(t *testing.T) {
	env := newServiceEnv(t)
	actor := env.addUser(t, "auth")

	id, _, err := env.posts.Create(context.Background(), "Тестовый пост", actor.ID, nil)
	if err != nil {
		t.Fatalf("seed post: %v", err)
	}

	res, err := env.svc.EditPost(context.Background(), actor, id, PostForm{Text: ""})
	if err != nil {
		t.Fatalf("edit post: %v", err)
	}
	if res.FieldErrors[fieldText] == "" {
		t.Fatalf("expected empty-text error, got %v", res.FieldErrors)
	}
	post, _ := env.svc.GetPostDetail(context.Background(), id)
	if post.Text != "Тестовый пост" {
		t.Fatalf("failed validation mutated text: %q", post.Text)
	}
}

func TestEditPostNotFound(t *testing.T) {
	env := newServiceEnv(t)
	actor := env.addUser(t, "auth")

	_, err := env.svc.EditPost(context.Background(), actor, 12345, PostForm{Text: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListPostsPagination(t *testing.T) {
	env := newServiceEnv(t)
	author := env.addUser(t, "auth2")
	group := seedGroup(t, env.groups)

	for i := 0; i < 13; i++ {
		text := fmt.Sprintf("Текстовый пост %d", i)
		if _, _, err := env.posts.Create(context.Background(), text, author.ID, &group.ID); err != nil {
			t.Fatalf("seed post %d: %v", i, err)
		}
	}

	first, err := env.svc.ListPosts(context.Background(), ListScope{}, 1)
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(first.Posts) != 10 {
		t.Fatalf("page 1 has %d posts, want 10", len(first.Posts))
	}
	if first.TotalItems != 13 || first.TotalPages != 2 {
		t.Fatalf("totals = %d items / %d pages, want 13/2", first.TotalItems, first.TotalPages)
	}
	if first.HasPrev || !first.HasNext {
		t.Fatalf("page 1 nav = prev:%v next:%v", first.HasPrev, first.HasNext)
	}

	second, err := env.svc.ListPosts(context.Background(), ListScope{}, 2)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(second.Posts) != 3 {
		t.Fatalf("page 2 has %d posts, want 3", len(second.Posts))
	}
	if !second.HasPrev || second.HasNext {
		t.Fatalf("page 2 nav = prev:%v next:%v", second.HasPrev, second.HasNext)
	}

	// A page past the end is an empty page, not an error.
	third, err := env.svc.ListPosts(context.Background(), ListScope{}, 3)
	if err != nil {
		t.Fatalf("list page 3: %v", err)
	}
	if len(third.Posts) != 0 {
		t.Fatalf("page 3 has %d posts, want 0", len(third.Posts))
	}
}

func TestListPostsNewestFirst(t *testing.T) {
	env := newServiceEnv(t)
	author := env.addUser(t, "auth")

	var lastID int64
	for i := 0; i < 3; i++ {
		id, _, err := env.posts.Create(context.Background(), fmt.Sprintf("пост %d", i), author.ID, nil)
		if err != nil {
			t.Fatalf("seed post: %v", err)
		}
		lastID = id
	}

	page, err := env.svc.ListPosts(context.Background(), ListScope{}, 1)
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if page.Posts[0].ID != lastID {
		t.Fatalf("first post id = %d, want newest %d", page.Posts[0].ID, lastID)
	}
	for i := 1; i < len(page.Posts); i++ {
		prev, cur := page.Posts[i-1], page.Posts[i]
		if cur.PubDate.After(prev.PubDate) {
			t.Fatalf("posts out of order at %d", i)
		}
	}
}

func TestListPostsByGroupScope(t *testing.T) {
	env := newServiceEnv(t)
	author := env.addUser(t, "auth")
	group := seedGroup(t, env.groups)

	if _, _, err := env.posts.Create(context.Background(), "в группе", author.ID, &group.ID); err != nil {
		t.Fatalf("seed post: %v", err)
	}
	if _, _, err := env.posts.Create(context.Background(), "без группы", author.ID, nil); err != nil {
		t.Fatalf("seed post: %v", err)
	}

	page, err := env.svc.ListPosts(context.Background(), ListScope{GroupSlug: "test-slug"}, 1)
	if err != nil {
		t.Fatalf("list by group: %v", err)
	}
	if len(page.Posts) != 1 || page.Posts[0].Text != "в группе" {
		t.Fatalf("group scope returned %+v", page.Posts)
	}
	if page.Group == nil || page.Group.Slug != "test-slug" {
		t.Fatalf("page group = %+v", page.Group)
	}
}

func TestListPostsByAuthorScope(t *testing.T) {
	env := newServiceEnv(t)
	first := env.addUser(t, "auth")
	second := env.addUser(t, "noname")

	if _, _, err := env.posts.Create(context.Background(), "от auth", first.ID, nil); err != nil {
		t.Fatalf("seed post: %v", err)
	}
	if _, _, err := env.posts.Create(context.Background(), "от noname", second.ID, nil); err != nil {
		t.Fatalf("seed post: %v", err)
	}

	page, err := env.svc.ListPosts(context.Background(), ListScope{Username: "auth"}, 1)
	if err != nil {
		t.Fatalf("list by author: %v", err)
	}
	if len(page.Posts) != 1 || page.Posts[0].AuthorUsername != "auth" {
		t.Fatalf("author scope returned %+v", page.Posts)
	}
	if page.AuthorUsername != "auth" || page.TotalItems != 1 {
		t.Fatalf("page meta = %q / %d", page.AuthorUsername, page.TotalItems)
	}
}

func TestListPostsUnknownScope(t *testing.T) {
	env := newServiceEnv(t)

	if _, err := env.svc.ListPosts(context.Background(), ListScope{GroupSlug: "no-such-slug"}, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown slug err = %v, want ErrNotFound", err)
	}
	if _, err := env.svc.ListPosts(context.Background(), ListScope{Username: "ghost"}, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown username err = %v, want ErrNotFound", err)
	}
}

func TestGetPostDetail(t *testing.T) {
	env := newServiceEnv(t)
	author := env.addUser(t, "auth")

	id, _, err := env.posts.Create(context.Background(), "Тестовый пост", author.ID, nil)
	if err != nil {
		t.Fatalf("seed post: %v", err)
	}

	post, err := env.svc.GetPostDetail(context.Background(), id)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if post.ID != id || post.Text != "Тестовый пост" {
		t.Fatalf("detail = %+v", post)
	}

	if _, err := env.svc.GetPostDetail(context.Background(), 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing post err = %v, want ErrNotFound", err)
	}
}
