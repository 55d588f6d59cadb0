package server

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
	googleoauth "golang.org/x/oauth2/google"

	"applydesk/internal/app"
	"applydesk/internal/domain"
	"applydesk/internal/session"
	"applydesk/internal/util"
)

//go:embed templates/*.html
var templateFS embed.FS

const sessionCookie = "applydesk_session"

// Limiter bounds request rates per key. A nil limiter allows everything.
type Limiter interface {
	Allow(key string) bool
}

// Config carries the server's collaborators and settings.
type Config struct {
	App      *app.App
	Sessions session.Store

	// BaseURL is the externally visible origin, used for OAuth callbacks
	// and the Secure flag on cookies.
	BaseURL string
	// DefaultOrgID prefills the apply and signup forms when no org is given.
	DefaultOrgID   string
	TrustedProxies []string

	LoginLimiter Limiter
	ResetLimiter Limiter
	ApplyLimiter Limiter

	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string
}

// Server is the HTTP front of the portal. Handlers stay thin; business
// rules live in the app package.
type Server struct {
	app      *app.App
	sessions session.Store
	pages    map[string]*template.Template

	baseURL      string
	secureCookie bool
	defaultOrgID string
	trusted      *util.TrustedProxies

	loginLimiter Limiter
	resetLimiter Limiter
	applyLimiter Limiter

	oauth map[string]*oauth2.Config
}

// New wires a server from its collaborators.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("server: app is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("server: session store is required")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("server: trusted proxies: %w", err)
	}
	pages, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("server: templates: %w", err)
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	s := &Server{
		app:          cfg.App,
		sessions:     cfg.Sessions,
		pages:        pages,
		baseURL:      baseURL,
		secureCookie: strings.HasPrefix(baseURL, "https://"),
		defaultOrgID: cfg.DefaultOrgID,
		trusted:      trusted,
		loginLimiter: cfg.LoginLimiter,
		resetLimiter: cfg.ResetLimiter,
		applyLimiter: cfg.ApplyLimiter,
		oauth:        make(map[string]*oauth2.Config),
	}
	if cfg.GitHubClientID != "" && cfg.GitHubClientSecret != "" {
		s.oauth["github"] = &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			Endpoint:     githuboauth.Endpoint,
			RedirectURL:  baseURL + "/auth/github/callback",
			Scopes:       []string{"user:email"},
		}
	}
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		s.oauth["google"] = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     googleoauth.Endpoint,
			RedirectURL:  baseURL + "/auth/google/callback",
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
		}
	}
	return s, nil
}

func loadTemplates() (map[string]*template.Template, error) {
	pages := []string{
		"home", "search", "apply", "newrole", "login", "signup",
		"forgot", "reset", "account", "notfound",
	}
	out := make(map[string]*template.Template, len(pages))
	for _, p := range pages {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+p+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		out[p] = t
	}
	return out, nil
}

// Router assembles routes and the standard middleware chain.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	s.routes(mux)
	var h http.Handler = mux
	h = s.withReturnTo(h)
	h = util.WithSecurityHeaders(h)
	h = util.WithRequestLog(h)
	h = util.WithRequestID(h)
	return h
}

// Routes are registered statically so the full surface is visible here.
func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/search", s.requireLogin(s.handleSearch))
	mux.HandleFunc("/apply", s.handleApply)
	mux.HandleFunc("/newrole", s.requireLogin(s.handleNewRole))
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.HandleFunc("/signup", s.handleSignup)
	mux.HandleFunc("/forgot", s.handleForgot)
	mux.HandleFunc("/reset/", s.handleReset)
	mux.HandleFunc("/account", s.requireLogin(s.handleAccount))
	mux.HandleFunc("/account/profile", s.requireLogin(s.handleProfile))
	mux.HandleFunc("/account/password", s.requireLogin(s.handlePassword))
	mux.HandleFunc("/account/delete", s.requireLogin(s.handleDelete))
	mux.HandleFunc("/account/unlink/", s.requireLogin(s.handleUnlink))
	mux.HandleFunc("/auth/", s.handleOAuth)
	mux.HandleFunc("/healthz", s.handleHealthz)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

// session loads the visitor's session, creating one (and setting the
// cookie) on first contact.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		sess, ok, err := s.sessions.Get(r.Context(), c.Value)
		if err != nil {
			return nil, err
		}
		if ok {
			return sess, nil
		}
	}
	sess, err := s.sessions.New(r.Context())
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, nil
}

func (s *Server) save(ctx context.Context, sess *session.Session) {
	if err := s.sessions.Save(ctx, sess); err != nil {
		util.LoggerFromContext(ctx).Error("save session failed", "error", err)
	}
}

type authedHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session, user domain.User)

// requireLogin resolves the session to a staff account or redirects to
// the login page, remembering where the visitor was headed.
func (s *Server) requireLogin(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.session(w, r)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		if !sess.LoggedIn() {
			if r.Method == http.MethodGet {
				sess.ReturnTo = r.URL.Path
				s.save(r.Context(), sess)
			}
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		user, ok, err := s.app.User(r.Context(), sess.UserID)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		if !ok {
			// Account deleted under a live session.
			_ = s.sessions.Delete(r.Context(), sess.Token)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		h(w, r, sess, user)
	}
}

// withReturnTo records the last non-auth GET path so login can send the
// visitor back where they came from.
func (s *Server) withReturnTo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && !skipReturnTo(r.URL.Path) {
			if c, err := r.Cookie(sessionCookie); err == nil {
				if sess, ok, err := s.sessions.Get(r.Context(), c.Value); err == nil && ok && sess.ReturnTo != r.URL.Path {
					sess.ReturnTo = r.URL.Path
					s.save(r.Context(), sess)
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

func skipReturnTo(path string) bool {
	for _, p := range []string{"/auth", "/login", "/logout", "/signup", "/forgot", "/reset", "/healthz"} {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// checkCSRF rejects state-changing requests whose form token does not
// match the session token.
func (s *Server) checkCSRF(w http.ResponseWriter, r *http.Request, sess *session.Session) bool {
	if r.FormValue("_csrf") != sess.CSRFToken || sess.CSRFToken == "" {
		http.Error(w, "invalid csrf token", http.StatusForbidden)
		return false
	}
	return true
}

// allow applies a rate limiter keyed by scope and client IP.
func (s *Server) allow(l Limiter, scope string, w http.ResponseWriter, r *http.Request) bool {
	if l == nil {
		return true
	}
	key := scope + ":" + util.ClientIP(r, s.trusted)
	if !l.Allow(key) {
		http.Error(w, "Too many requests. Try again later.", http.StatusTooManyRequests)
		return false
	}
	return true
}

type viewData struct {
	Title    string
	LoggedIn bool
	User     domain.User
	CSRF     string
	Flash    map[string][]string
	Data     map[string]any
}

// render pops flash notices, persists the session, and writes the page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, sess *session.Session, page, title string, data map[string]any) {
	vd := viewData{
		Title: title,
		CSRF:  sess.CSRFToken,
		Data:  data,
	}
	flash := sess.PopFlashes()
	if len(flash) > 0 {
		vd.Flash = flash
		s.save(r.Context(), sess)
	}
	if sess.LoggedIn() {
		if user, ok, err := s.app.User(r.Context(), sess.UserID); err == nil && ok {
			vd.LoggedIn = true
			vd.User = user
		}
	}
	t, ok := s.pages[page]
	if !ok {
		s.serverError(w, r, fmt.Errorf("unknown page %q", page))
		return
	}
	if err := t.ExecuteTemplate(w, "layout.html", vd); err != nil {
		util.LoggerFromContext(r.Context()).Error("render failed", "page", page, "error", err)
	}
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	w.WriteHeader(http.StatusNotFound)
	s.render(w, r, sess, "notfound", "Not Found", nil)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	util.LoggerFromContext(r.Context()).Error("request failed", "error", err, "path", r.URL.Path)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func (s *Server) redirectAfterLogin(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	target := sess.ReturnTo
	if target == "" {
		target = "/"
	}
	sess.ReturnTo = ""
	s.save(r.Context(), sess)
	http.Redirect(w, r, target, http.StatusFound)
}

// HTTPServer builds the outer http.Server with sane timeouts.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
