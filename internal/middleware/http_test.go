package middleware

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mark("first"), mark("second"))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Join(order, ",") != "first,second,handler" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := Chain(http.NotFoundHandler(), SecurityHeaders(SecurityHeadersConfig{ContentSecurityPolicy: "default-src 'self'"}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("missing frame options")
	}
	if rr.Header().Get("Content-Security-Policy") != "default-src 'self'" {
		t.Fatalf("missing csp")
	}
}

func TestRequestLogRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	flags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(flags)
	})

	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), RequestLog("api"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPatch, "/api/admin/attendance/x", nil))

	line := buf.String()
	if !strings.HasPrefix(line, "api PATCH /api/admin/attendance/x 418 ") {
		t.Fatalf("unexpected log line %q", line)
	}
}
