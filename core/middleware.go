package core

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

const sessionName = "blog_session"
const sessionMaxAge = 1209600 // 14 days

const loginPath = "/auth/login/"

// SessionMiddleware ensures a session exists and applies consistent cookie options.
func SessionMiddleware(cfg Config, store *sessions.CookieStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		// A stale or corrupted cookie fails to decode; store.Get still hands
		// back a fresh session, so the visitor continues as anonymous.
		session, _ := store.Get(c.Request, sessionName)

		applySessionOptions(cfg, session)
		// Save to ensure options are persisted even for anonymous users.
		if err := session.Save(c.Request, c.Writer); err != nil {
			c.String(http.StatusInternalServerError, "failed to persist session")
			c.Abort()
			return
		}

		c.Set("session", session)
		c.Next()
	}
}

// CurrentUserMiddleware resolves the session's username to a user once per
// request and stores it in the context. A stale session (user row gone) is
// treated as anonymous.
func CurrentUserMiddleware(users UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessionFrom(c)
		if sess == nil {
			c.Next()
			return
		}
		username, _ := sess.Values["username"].(string)
		if strings.TrimSpace(username) == "" {
			c.Next()
			return
		}
		u, err := users.FindByUsername(c.Request.Context(), username)
		if err != nil {
			c.Next()
			return
		}
		c.Set("user", &User{ID: u.ID, Username: u.Username, Role: u.Role, CreatedAt: u.CreatedAt})
		c.Next()
	}
}

// CSRFMiddleware issues a per-session token and validates the csrf_token form
// field on unsafe methods. Login and signup are exempt so a fresh browser can
// authenticate.
func CSRFMiddleware(cfg Config, store *sessions.CookieStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessionFrom(c)
		if sess == nil {
			sess, _ = store.Get(c.Request, sessionName)
		}

		token, _ := sess.Values["csrf_token"].(string)
		if token == "" {
			var err error
			token, err = generateCSRFToken()
			if err != nil {
				c.String(http.StatusInternalServerError, "failed to issue csrf token")
				c.Abort()
				return
			}
			sess.Values["csrf_token"] = token
			applySessionOptions(cfg, sess)
			if err := sess.Save(c.Request, c.Writer); err != nil {
				c.String(http.StatusInternalServerError, "failed to persist session")
				c.Abort()
				return
			}
		}
		c.Set("csrf_token", token)

		if cfg.CSRFEnabled && !isSafeMethod(c.Request.Method) && !csrfExemptPath(c.Request.URL.Path) {
			if c.PostForm("csrf_token") != token {
				c.String(http.StatusForbidden, "invalid csrf token")
				c.Abort()
				return
			}
		}

		c.Next()
	}
}

// requireLogin returns the current user or redirects to the login flow with a
// next parameter pointing back at the requested page.
func requireLogin(c *gin.Context) (*User, bool) {
	if u := userFrom(c); u != nil {
		return u, true
	}
	next := url.QueryEscape(c.Request.URL.Path)
	c.Redirect(http.StatusFound, loginPath+"?next="+next)
	c.Abort()
	return nil, false
}

func sessionFrom(c *gin.Context) *sessions.Session {
	sessionAny, _ := c.Get("session")
	sess, _ := sessionAny.(*sessions.Session)
	return sess
}

func userFrom(c *gin.Context) *User {
	userAny, _ := c.Get("user")
	u, _ := userAny.(*User)
	return u
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

// Paths that intentionally skip CSRF validation.
func csrfExemptPath(path string) bool {
	switch path {
	case "/auth/login/", "/auth/signup/":
		return true
	default:
		return false
	}
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func applySessionOptions(cfg Config, session *sessions.Session) {
	if session.Options == nil {
		session.Options = &sessions.Options{}
	}
	session.Options.Path = "/"
	session.Options.MaxAge = sessionMaxAge
	session.Options.HttpOnly = true
	session.Options.Secure = cfg.CookieSecure
	session.Options.SameSite = sameSiteFromString(cfg.CookieSameSite)
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
