package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/phillip-england/caresuite/internal/attendance"
)

const (
	SessionCookieName = "caresuite_session"
	CSRFHeaderName    = "X-CSRF-Token"
)

var ErrUnauthorized = errors.New("not signed in")

// StatusError is a non-2xx answer from the API, carrying its error message.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned %d", e.Status)
	}
	return e.Message
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case attendance.ErrUnknownRecord:
		return e.Status == http.StatusNotFound
	case attendance.ErrRejected:
		if e.Status == http.StatusUnauthorized || e.Status == http.StatusRequestTimeout || e.Status == http.StatusTooManyRequests {
			return false
		}
		return e.Status >= 400 && e.Status < 500
	default:
		return false
	}
}

type Client struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	sessionID string
	csrfToken string
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 8 * time.Second},
	}
}

// WithSession returns a client that acts as the given API session.
func (c *Client) WithSession(sessionID string) *Client {
	return &Client{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		sessionID:  sessionID,
	}
}

func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) Login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeStatusError(resp)
	}

	var payload struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	sessionID := ""
	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookieName {
			sessionID = cookie.Value
		}
	}
	if sessionID == "" {
		return errors.New("login response did not set a session")
	}
	c.mu.Lock()
	c.sessionID = sessionID
	c.csrfToken = payload.CSRFToken
	c.mu.Unlock()
	return nil
}

func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	c.mu.Lock()
	c.sessionID = ""
	c.csrfToken = ""
	c.mu.Unlock()
	return err
}

func (c *Client) Me(ctx context.Context) (string, error) {
	var payload struct {
		Username string `json:"username"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &payload); err != nil {
		return "", err
	}
	return payload.Username, nil
}

func (c *Client) CSRFToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.csrfToken
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}

	var payload struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/csrf", nil, &payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.CSRFToken) == "" {
		return "", errors.New("empty csrf token")
	}
	c.mu.Lock()
	c.csrfToken = payload.CSRFToken
	c.mu.Unlock()
	return payload.CSRFToken, nil
}

func (c *Client) ListAttendance(ctx context.Context, filter attendance.Filter) ([]attendance.Record, error) {
	query := url.Values{}
	if strings.TrimSpace(filter.Date) != "" {
		query.Set("date", strings.TrimSpace(filter.Date))
	}
	if strings.TrimSpace(filter.Status) != "" {
		query.Set("status", strings.TrimSpace(filter.Status))
	}
	path := "/api/admin/attendance"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var payload struct {
		Count   int                 `json:"count"`
		Records []attendance.Record `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Records, nil
}

func (c *Client) GetAttendance(ctx context.Context, id string) (attendance.Record, error) {
	var rec attendance.Record
	err := c.do(ctx, http.MethodGet, "/api/admin/attendance/"+url.PathEscape(id), nil, &rec)
	return rec, err
}

func (c *Client) UpdateAttendance(ctx context.Context, payload attendance.Payload) (attendance.Record, error) {
	var rec attendance.Record
	err := c.do(ctx, http.MethodPatch, "/api/admin/attendance/"+url.PathEscape(payload.ID), payload, &rec)
	return rec, err
}

func (c *Client) CreateAttendance(ctx context.Context, entry attendance.NewEntry) (attendance.Record, error) {
	var rec attendance.Record
	err := c.do(ctx, http.MethodPost, "/api/admin/attendance", entry, &rec)
	return rec, err
}

func (c *Client) ApproveAttendance(ctx context.Context, id string) (attendance.Record, error) {
	var rec attendance.Record
	err := c.do(ctx, http.MethodPut, "/api/admin/attendance/"+url.PathEscape(id)+"/approve", nil, &rec)
	return rec, err
}

func (c *Client) DeleteAttendance(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/admin/attendance/"+url.PathEscape(id), nil, nil)
}

// ExportAttendance downloads the spreadsheet for a filter. It returns the
// file bytes and the name the server suggested.
func (c *Client) ExportAttendance(ctx context.Context, filter attendance.Filter) ([]byte, string, error) {
	query := url.Values{}
	if strings.TrimSpace(filter.Date) != "" {
		query.Set("date", strings.TrimSpace(filter.Date))
	}
	if strings.TrimSpace(filter.Status) != "" {
		query.Set("status", strings.TrimSpace(filter.Status))
	}
	apiURL := c.baseURL + "/api/admin/attendance/export"
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("error creating request: %w", err)
	}
	c.attachSession(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", decodeStatusError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	filename := "attendance.xlsx"
	if disposition := resp.Header.Get("Content-Disposition"); disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			filename = params["filename"]
		}
	}
	return data, filename, nil
}

type ImportResult struct {
	Imported int          `json:"imported"`
	Skipped  []ImportSkip `json:"skipped"`
}

type ImportSkip struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

func (c *Client) ImportAttendance(ctx context.Context, filename string, file io.Reader) (ImportResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return ImportResult{}, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return ImportResult{}, err
	}
	if err := writer.Close(); err != nil {
		return ImportResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/admin/attendance/import", &buf)
	if err != nil {
		return ImportResult{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if err := c.attachCSRF(ctx, req); err != nil {
		return ImportResult{}, err
	}
	c.attachSession(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ImportResult{}, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ImportResult{}, decodeStatusError(resp)
	}
	var result ImportResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ImportResult{}, fmt.Errorf("error decoding response: %w", err)
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && method != http.MethodHead {
		if err := c.attachCSRF(ctx, req); err != nil {
			return err
		}
	}
	c.attachSession(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return decodeStatusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

func (c *Client) attachSession(req *http.Request) {
	if sessionID := c.SessionID(); sessionID != "" {
		req.Header.Set("Cookie", SessionCookieName+"="+sessionID)
	}
}

func (c *Client) attachCSRF(ctx context.Context, req *http.Request) error {
	if c.SessionID() == "" {
		return ErrUnauthorized
	}
	token, err := c.CSRFToken(ctx)
	if err != nil {
		return fmt.Errorf("fetch csrf token: %w", err)
	}
	req.Header.Set(CSRFHeaderName, token)
	return nil
}

func decodeStatusError(resp *http.Response) error {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	statusErr := &StatusError{Status: resp.StatusCode}
	var payload map[string]string
	if err := json.Unmarshal(respBody, &payload); err == nil {
		statusErr.Message = strings.TrimSpace(payload["error"])
	}
	return statusErr
}
