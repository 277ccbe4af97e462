package core

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, store *sessions.CookieStore, authService AuthService, users UserRepository, groups GroupRepository, posts PostRepository) *gin.Engine {
	r := gin.Default()
	LoadTemplates(r)

	r.Use(SessionMiddleware(cfg, store))
	r.Use(CSRFMiddleware(cfg, store))
	r.Use(CurrentUserMiddleware(users))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	svc := NewPostService(posts, groups, users)

	r.GET("/", func(c *gin.Context) {
		page, err := svc.ListPosts(c.Request.Context(), ListScope{}, parsePage(c.Query("page")))
		if err != nil {
			serverError(c, err)
			return
		}
		renderPage(c, http.StatusOK, "index.html", "Последние обновления", gin.H{
			"Page":     page,
			"BasePath": "/",
		})
	})

	r.GET("/group/:slug/", func(c *gin.Context) {
		slug := c.Param("slug")
		page, err := svc.ListPosts(c.Request.Context(), ListScope{GroupSlug: slug}, parsePage(c.Query("page")))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				notFound(c)
				return
			}
			serverError(c, err)
			return
		}
		renderPage(c, http.StatusOK, "group_list.html", page.Group.Title, gin.H{
			"Page":     page,
			"BasePath": "/group/" + slug + "/",
		})
	})

	r.GET("/profile/:username/", func(c *gin.Context) {
		username := c.Param("username")
		page, err := svc.ListPosts(c.Request.Context(), ListScope{Username: username}, parsePage(c.Query("page")))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				notFound(c)
				return
			}
			serverError(c, err)
			return
		}
		renderPage(c, http.StatusOK, "profile.html", "Профиль "+username, gin.H{
			"Page":     page,
			"BasePath": "/profile/" + username + "/",
		})
	})

	r.GET("/posts/:id/", func(c *gin.Context) {
		id, ok := parseID(c.Param("id"))
		if !ok {
			notFound(c)
			return
		}
		post, err := svc.GetPostDetail(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				notFound(c)
				return
			}
			serverError(c, err)
			return
		}
		renderPage(c, http.StatusOK, "post_detail.html", "Запись", gin.H{"Post": post})
	})

	r.GET("/create/", func(c *gin.Context) {
		if _, ok := requireLogin(c); !ok {
			return
		}
		renderPostForm(c, svc, http.StatusOK, PostForm{}, nil, false)
	})

	r.POST("/create/", func(c *gin.Context) {
		user, ok := requireLogin(c)
		if !ok {
			return
		}
		form := PostForm{Text: c.PostForm("text"), GroupID: c.PostForm("group")}
		res, err := svc.CreatePost(c.Request.Context(), user, form)
		if err != nil {
			serverError(c, err)
			return
		}
		if len(res.FieldErrors) > 0 {
			renderPostForm(c, svc, http.StatusOK, form, res.FieldErrors, false)
			return
		}
		c.Redirect(http.StatusFound, res.RedirectTo)
	})

	r.GET("/posts/:id/edit/", func(c *gin.Context) {
		user, ok := requireLogin(c)
		if !ok {
			return
		}
		id, ok := parseID(c.Param("id"))
		if !ok {
			notFound(c)
			return
		}
		post, err := svc.GetPostDetail(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				notFound(c)
				return
			}
			serverError(c, err)
			return
		}
		// Only the author sees the edit form; everyone else views the post.
		if user.ID != post.AuthorID {
			c.Redirect(http.StatusFound, postDetailPath(post.ID))
			return
		}
		form := PostForm{Text: post.Text}
		if post.Group != nil {
			form.GroupID = strconv.FormatInt(post.Group.ID, 10)
		}
		renderPostForm(c, svc, http.StatusOK, form, nil, true)
	})

	r.POST("/posts/:id/edit/", func(c *gin.Context) {
		user, ok := requireLogin(c)
		if !ok {
			return
		}
		id, ok := parseID(c.Param("id"))
		if !ok {
			notFound(c)
			return
		}
		form := PostForm{Text: c.PostForm("text"), GroupID: c.PostForm("group")}
		res, err := svc.EditPost(c.Request.Context(), user, id, form)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				notFound(c)
				return
			}
			serverError(c, err)
			return
		}
		if len(res.FieldErrors) > 0 {
			renderPostForm(c, svc, http.StatusOK, form, res.FieldErrors, true)
			return
		}
		c.Redirect(http.StatusFound, res.RedirectTo)
	})

	auth := r.Group("/auth")
	{
		auth.GET("/login/", func(c *gin.Context) {
			renderPage(c, http.StatusOK, "login.html", "Войти", gin.H{
				"Form": loginForm{},
				"Next": c.Query("next"),
			})
		})

		auth.POST("/login/", func(c *gin.Context) {
			form := loginForm{Username: strings.TrimSpace(c.PostForm("username"))}
			user, err := authService.Authenticate(c.Request.Context(), form.Username, c.PostForm("password"))
			if err != nil {
				renderPage(c, http.StatusOK, "login.html", "Войти", gin.H{
					"Form":      form,
					"Next":      c.PostForm("next"),
					"FormError": "Неверное имя пользователя или пароль",
				})
				return
			}
			if err := loginSession(c, cfg, user); err != nil {
				serverError(c, err)
				return
			}
			c.Redirect(http.StatusFound, safeNext(c.PostForm("next")))
		})

		auth.POST("/logout/", func(c *gin.Context) {
			sess := sessionFrom(c)
			if sess != nil {
				sess.Values = map[interface{}]interface{}{}
				applySessionOptions(cfg, sess)
				sess.Options.MaxAge = -1 // Must be set AFTER applySessionOptions to properly delete cookie
				if err := sess.Save(c.Request, c.Writer); err != nil {
					serverError(c, err)
					return
				}
			}
			c.Redirect(http.StatusFound, "/")
		})

		auth.GET("/signup/", func(c *gin.Context) {
			renderPage(c, http.StatusOK, "signup.html", "Регистрация", gin.H{"Form": loginForm{}})
		})

		auth.POST("/signup/", func(c *gin.Context) {
			form := loginForm{Username: strings.TrimSpace(c.PostForm("username"))}
			user, err := authService.Register(c.Request.Context(), form.Username, c.PostForm("password"))
			if err != nil {
				msg := "Не удалось создать пользователя"
				if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
					msg = "Имя пользователя уже занято"
				}
				renderPage(c, http.StatusOK, "signup.html", "Регистрация", gin.H{
					"Form":      form,
					"FormError": msg,
				})
				return
			}
			if err := loginSession(c, cfg, user); err != nil {
				serverError(c, err)
				return
			}
			c.Redirect(http.StatusFound, "/")
		})
	}

	return r
}

type loginForm struct {
	Username string
}

// loginSession rotates the session and stores the authenticated username.
func loginSession(c *gin.Context, cfg Config, user User) error {
	sess := sessionFrom(c)
	if sess == nil {
		return errors.New("no session on request")
	}
	sess.Values = map[interface{}]interface{}{}
	sess.Values["username"] = user.Username
	applySessionOptions(cfg, sess)
	return sess.Save(c.Request, c.Writer)
}

// safeNext only follows local redirect targets.
func safeNext(next string) string {
	if strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") {
		return next
	}
	return "/"
}

func renderPostForm(c *gin.Context, svc *PostService, status int, form PostForm, fieldErrs FieldErrors, isEdit bool) {
	groupList, err := svc.groups.List(c.Request.Context())
	if err != nil {
		serverError(c, err)
		return
	}
	title := "Новая запись"
	if isEdit {
		title = "Редактировать запись"
	}
	renderPage(c, status, "create_post.html", title, gin.H{
		"Form":   form,
		"Errors": fieldErrs,
		"Groups": groupList,
		"IsEdit": isEdit,
	})
}

// renderPage fills in the fields every template expects and renders.
func renderPage(c *gin.Context, status int, name, title string, data gin.H) {
	data["Title"] = title
	data["User"] = userFrom(c)
	data["CSRFToken"] = c.GetString("csrf_token")
	c.HTML(status, name, data)
}

func notFound(c *gin.Context) {
	c.String(http.StatusNotFound, "404: страница не найдена")
}

func serverError(c *gin.Context, err error) {
	log.Printf("internal error: %v", err)
	c.String(http.StatusInternalServerError, "внутренняя ошибка сервера")
}

// parsePage reads a 1-indexed page query value; anything unusable means page 1.
func parsePage(raw string) int {
	if strings.TrimSpace(raw) == "" {
		return 1
	}
	p, err := strconv.Atoi(raw)
	if err != nil || p <= 0 {
		return 1
	}
	return p
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
