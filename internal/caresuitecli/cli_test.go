package caresuitecli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phillip-england/caresuite/internal/apiclient"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSetupWritesEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	out, err := execute(t, "setup", "--env-file", path, "--admin-password", "correct-horse-battery")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if !strings.Contains(out, "wrote "+path) {
		t.Fatalf("unexpected output %q", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read env: %v", err)
	}
	for _, want := range []string{"ADMIN_USERNAME=admin\n", "ADMIN_PASSWORD=correct-horse-battery\n", "CARESUITE_DB_PATH=data/caresuite.db\n"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("env file missing %q:\n%s", want, data)
		}
	}

	if _, err := execute(t, "setup", "--env-file", path, "--admin-password", "correct-horse-battery"); err == nil {
		t.Fatalf("expected refusal to overwrite without --force")
	}
	if _, err := execute(t, "setup", "--env-file", path, "--admin-password", "correct-horse-battery", "--force"); err != nil {
		t.Fatalf("setup --force: %v", err)
	}
}

func TestSetupRejectsShortPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if _, err := execute(t, "setup", "--env-file", path, "--admin-password", "short"); err == nil {
		t.Fatalf("expected short password error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no env file, stat err %v", err)
	}
}

func TestUsageErrors(t *testing.T) {
	env := filepath.Join(t.TempDir(), "missing.env")
	for _, args := range [][]string{
		{},
		{"run", "--env-file", env},
		{"run", "worker", "--env-file", env},
		{"attendance", "--env-file", env},
		{"attendance", "export", "--date", "01/10/2024", "--env-file", env},
		{"attendance", "import", "--env-file", env},
	} {
		if _, err := execute(t, args...); !errors.Is(err, ErrUsage) {
			t.Fatalf("%v: expected ErrUsage, got %v", args, err)
		}
	}
}

func TestAttendanceExportAndImport(t *testing.T) {
	var uploaded string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["password"] != "correct-horse-battery" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"error":"invalid credentials"}`)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: apiclient.SessionCookieName, Value: "sess-1"})
			_, _ = io.WriteString(w, `{"message":"login successful","csrfToken":"csrf-1"}`)
		case "/api/auth/logout":
			_, _ = io.WriteString(w, `{"message":"logged out"}`)
		case "/api/admin/attendance/export":
			if r.URL.Query().Get("date") != "2024-01-10" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"error":"unexpected date"}`)
				return
			}
			w.Header().Set("Content-Disposition", `attachment; filename="attendance-2024-01-10.xlsx"`)
			_, _ = io.WriteString(w, "xlsx-bytes")
		case "/api/admin/attendance/import":
			file, header, err := r.FormFile("file")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			defer file.Close()
			uploaded = header.Filename
			_, _ = io.WriteString(w, `{"imported":2,"skipped":[{"row":4,"reason":"time in: Hour must be between 00 and 23"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer api.Close()

	dir := t.TempDir()
	env := filepath.Join(dir, "missing.env")
	t.Setenv("API_BASE_URL", api.URL)
	t.Setenv("ADMIN_USERNAME", "admin")
	t.Setenv("ADMIN_PASSWORD", "correct-horse-battery")

	out := filepath.Join(dir, "exports", "day.xlsx")
	if _, err := execute(t, "attendance", "export", "--date", "2024-01-10", "--out", out, "--env-file", env); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil || string(data) != "xlsx-bytes" {
		t.Fatalf("unexpected export file %q %v", data, err)
	}

	sheet := filepath.Join(dir, "shifts.xlsx")
	if err := os.WriteFile(sheet, []byte("sheet"), 0o600); err != nil {
		t.Fatalf("write sheet: %v", err)
	}
	output, err := execute(t, "attendance", "import", sheet, "--env-file", env)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if uploaded != "shifts.xlsx" {
		t.Fatalf("unexpected upload name %q", uploaded)
	}
	if !strings.Contains(output, "imported 2 shift(s)") || !strings.Contains(output, "skipped row 4: time in: Hour must be between 00 and 23") {
		t.Fatalf("unexpected output %q", output)
	}
}
