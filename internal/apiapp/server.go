package apiapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/phillip-england/caresuite/internal/envutil"
	"github.com/phillip-england/caresuite/internal/middleware"
	"github.com/phillip-england/caresuite/internal/security"
)

const (
	sessionCookieName = "caresuite_session"
	csrfHeaderName    = "X-CSRF-Token"
)

type contextKey string

const (
	userContextKey    contextKey = "user"
	sessionContextKey contextKey = "session"
)

type Config struct {
	Addr          string
	DBPath        string
	AdminUsername string
	AdminPassword string
	SessionTTL    time.Duration
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type server struct {
	store      *sqliteStore
	sessionTTL time.Duration
}

func DefaultConfigFromEnv() Config {
	return Config{
		Addr:          envutil.String("API_ADDR", ":8080"),
		DBPath:        envutil.String("CARESUITE_DB_PATH", "caresuite.db"),
		AdminUsername: envutil.String("ADMIN_USERNAME", ""),
		AdminPassword: envutil.String("ADMIN_PASSWORD", ""),
		SessionTTL:    envutil.Duration("SESSION_TTL", 12*time.Hour),
	}
}

func Run(ctx context.Context, cfg Config) error {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return errors.New("ADMIN_USERNAME and ADMIN_PASSWORD are required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}

	store, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.ensureAdminUser(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return fmt.Errorf("ensure admin user: %w", err)
	}
	s := &server{store: store, sessionTTL: cfg.SessionTTL}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("api listening on http://localhost%s", cfg.Addr)
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
	mux.Handle("/api/health", http.HandlerFunc(s.health))
	mux.Handle("/api/auth/login", http.HandlerFunc(s.login))
	mux.Handle("/api/auth/me", middleware.Chain(http.HandlerFunc(s.me), s.requireAdmin))
	mux.Handle("/api/auth/csrf", middleware.Chain(http.HandlerFunc(s.csrfToken), s.requireAdmin))
	mux.Handle("/api/auth/logout", middleware.Chain(http.HandlerFunc(s.logout), s.requireAdmin, s.csrfProtect))
	mux.Handle("/api/admin/attendance", middleware.Chain(http.HandlerFunc(s.attendanceHandler), s.requireAdmin, s.csrfProtect))
	mux.Handle("/api/admin/attendance/", middleware.Chain(http.HandlerFunc(s.attendanceByIDHandler), s.requireAdmin, s.csrfProtect))

	return middleware.Chain(
		mux,
		middleware.RequestLog("api"),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'"}),
	)
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, hash, err := s.store.lookupUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, errNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}
	if !user.IsAdmin || !security.VerifyPassword(req.Password, hash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	sessionID, err := security.NewToken(32)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}
	csrfToken, err := security.NewToken(32)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}

	expires := time.Now().UTC().Add(s.sessionTTL)
	if err := withSQLiteRetry(func() error {
		return s.store.createSession(r.Context(), sessionID, user.ID, csrfToken, expires)
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(s.sessionTTL.Seconds()),
		Expires:  expires,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "authenticated", "csrfToken": csrfToken})
}

func (s *server) me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user := userFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"isAdmin":  user.IsAdmin,
	})
}

func (s *server) csrfToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess := sessionFromContext(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": sess.CSRFToken})
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if sess := sessionFromContext(r.Context()); sess != nil {
		_ = s.store.deleteSession(r.Context(), sess.ID)
	}
	expireSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "signed out"})
}

func (s *server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		sess, user, err := s.store.lookupSession(r.Context(), cookie.Value)
		if err != nil {
			if errors.Is(err, errNotFound) {
				expireSessionCookie(w)
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			writeError(w, http.StatusInternalServerError, "session check failed")
			return
		}
		if !user.IsAdmin {
			expireSessionCookie(w)
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, sess)
		ctx = context.WithValue(ctx, userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			next.ServeHTTP(w, r)
			return
		}
		sess := sessionFromContext(r.Context())
		if sess == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		token := strings.TrimSpace(r.Header.Get(csrfHeaderName))
		if token == "" || token != sess.CSRFToken {
			writeError(w, http.StatusForbidden, "csrf validation failed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userFromContext(ctx context.Context) *userRecord {
	record, ok := ctx.Value(userContextKey).(*userRecord)
	if !ok {
		return nil
	}
	return record
}

func sessionFromContext(ctx context.Context) *sessionRecord {
	record, ok := ctx.Value(sessionContextKey).(*sessionRecord)
	if !ok {
		return nil
	}
	return record
}

func expireSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
