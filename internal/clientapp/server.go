package clientapp

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phillip-england/caresuite/internal/apiclient"
	"github.com/phillip-england/caresuite/internal/envutil"
	"github.com/phillip-england/caresuite/internal/middleware"
)

const (
	csrfHeaderName    = apiclient.CSRFHeaderName
	sessionCookieName = apiclient.SessionCookieName
)

type contextKey string

const sessionContextKey contextKey = "session"

type Config struct {
	Addr         string
	APIBaseURL   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SessionTTL   time.Duration
}

//go:embed templates/login.html templates/attendance.html assets/attendance.js assets/app.css
var templatesFS embed.FS

type server struct {
	api            *apiclient.Client
	sessions       *sessionCache
	loginTmpl      *template.Template
	attendanceTmpl *template.Template
	now            func() time.Time
}

func DefaultConfigFromEnv() Config {
	return Config{
		Addr:         envutil.String("CLIENT_ADDR", ":3000"),
		APIBaseURL:   envutil.String("API_BASE_URL", "http://localhost:8080"),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		SessionTTL:   envutil.Duration("SESSION_TTL", 12*time.Hour),
	}
}

func newServer(cfg Config) *server {
	api := apiclient.New(cfg.APIBaseURL)
	return &server{
		api:            api,
		sessions:       newSessionCache(api, cfg.SessionTTL),
		loginTmpl:      template.Must(template.ParseFS(templatesFS, "templates/login.html")),
		attendanceTmpl: template.Must(template.New("attendance.html").Funcs(templateFuncs).ParseFS(templatesFS, "templates/attendance.html")),
		now:            time.Now,
	}
}

func Run(ctx context.Context, cfg Config) error {
	s := newServer(cfg)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("client listening on http://localhost%s", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", http.HandlerFunc(s.loginRoute))
	mux.Handle("/login", http.HandlerFunc(s.loginRoute))
	mux.Handle("/logout", middleware.Chain(http.HandlerFunc(s.logout), s.requireAdmin))
	mux.Handle("/admin", http.RedirectHandler("/admin/attendance", http.StatusFound))
	mux.Handle("/admin/attendance", middleware.Chain(http.HandlerFunc(s.attendancePage), s.requireAdmin))
	mux.Handle("/admin/attendance/", middleware.Chain(http.HandlerFunc(s.attendanceRoutes), s.requireAdmin))
	mux.Handle("/assets/", http.HandlerFunc(s.assetFile))

	csp := strings.Join([]string{
		"default-src 'self'",
		"style-src 'self'",
		"img-src 'self' data:",
		"script-src 'self'",
		"connect-src 'self'",
		"frame-ancestors 'none'",
	}, "; ")

	return middleware.Chain(
		mux,
		middleware.RequestLog("client"),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{ContentSecurityPolicy: csp}),
	)
}

func (s *server) loginRoute(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/login" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.loginPage(w, r)
	case http.MethodPost:
		s.login(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *server) loginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.validSession(r); ok {
		http.Redirect(w, r, "/admin/attendance", http.StatusFound)
		return
	}
	data := pageData{Error: r.URL.Query().Get("error"), Message: r.URL.Query().Get("message")}
	if err := renderHTMLTemplate(w, s.loginTmpl, data); err != nil {
		http.Error(w, "template render failed", http.StatusInternalServerError)
		log.Printf("login template render failed: %v", err)
	}
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/?error=Invalid+form+submission", http.StatusFound)
		return
	}
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	if username == "" || password == "" {
		http.Redirect(w, r, "/?error=Username+and+password+are+required", http.StatusFound)
		return
	}

	client := s.api.WithSession("")
	if err := client.Login(r.Context(), username, password); err != nil {
		var statusErr *apiclient.StatusError
		if errors.As(err, &statusErr) {
			http.Redirect(w, r, "/?error=Invalid+credentials", http.StatusFound)
			return
		}
		log.Printf("login failed: %v", err)
		http.Redirect(w, r, "/?error=Authentication+service+unavailable", http.StatusFound)
		return
	}
	sess := s.sessions.put(client)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	http.Redirect(w, r, "/admin/attendance", http.StatusFound)
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess := sessionFromContext(r.Context())
	if !s.csrfValid(r, sess) {
		http.Redirect(w, r, "/admin/attendance?error=Missing+csrf+token", http.StatusFound)
		return
	}
	if err := sess.client.Logout(r.Context()); err != nil {
		log.Printf("api logout failed: %v", err)
	}
	s.sessions.drop(sess.id)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
	http.Redirect(w, r, "/?message=Signed+out", http.StatusFound)
}

func (s *server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.validSession(r)
		if !ok {
			if wantsJSON(r) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session expired"})
				return
			}
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionContextKey, sess)))
	})
}

func (s *server) validSession(r *http.Request) (*adminSession, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return nil, false
	}
	sess := s.sessions.get(cookie.Value)
	if _, err := sess.client.Me(r.Context()); err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			s.sessions.drop(cookie.Value)
		}
		return nil, false
	}
	return sess, true
}

// csrfValid compares the token a form or script sent with the API session's
// token.
func (s *server) csrfValid(r *http.Request, sess *adminSession) bool {
	token := strings.TrimSpace(r.Header.Get(csrfHeaderName))
	if token == "" {
		token = strings.TrimSpace(r.FormValue("csrf_token"))
	}
	if token == "" {
		return false
	}
	expected, err := sess.client.CSRFToken(r.Context())
	if err != nil {
		return false
	}
	return token == expected
}

func (s *server) assetFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var contentType string
	switch r.URL.Path {
	case "/assets/attendance.js":
		contentType = "text/javascript; charset=utf-8"
	case "/assets/app.css":
		contentType = "text/css; charset=utf-8"
	default:
		http.NotFound(w, r)
		return
	}
	data, err := templatesFS.ReadFile(strings.TrimPrefix(r.URL.Path, "/"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(data)
}

func sessionFromContext(ctx context.Context) *adminSession {
	sess, ok := ctx.Value(sessionContextKey).(*adminSession)
	if !ok {
		return nil
	}
	return sess
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func renderHTMLTemplate(w http.ResponseWriter, tmpl *template.Template, data pageData) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := w.Write(buf.Bytes())
	return err
}

func redirectWith(w http.ResponseWriter, r *http.Request, date, key, message string) {
	query := url.Values{}
	if date != "" {
		query.Set("date", date)
	}
	if message != "" {
		query.Set(key, message)
	}
	target := "/admin/attendance"
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
