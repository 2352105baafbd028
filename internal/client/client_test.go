package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muurk/printhost/internal/version"
)

const settingsResponse = `{"serial":{"autoconnect":false,"baudrate":115200,"timeoutDetection":0.5},"api":{"key":"SECRET"}}`

func newTestClient(url string) *Client {
	c := NewClient(url, "SECRET")
	c.SetRetry(2, time.Millisecond)
	return c
}

func TestNewClient(t *testing.T) {
	c := NewClient("http://octopi.local:5000/", "KEY")

	if c.BaseURL != "http://octopi.local:5000" {
		t.Errorf("BaseURL = %s, want trailing slash trimmed", c.BaseURL)
	}
	if c.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", c.MaxRetries, DefaultMaxRetries)
	}
	if c.HTTPClient.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.HTTPClient.Timeout, DefaultTimeout)
	}

	c.SetTimeout(time.Second)
	if c.HTTPClient.Timeout != time.Second {
		t.Errorf("Timeout = %v, want 1s", c.HTTPClient.Timeout)
	}
}

func TestGetSettings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/settings" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get(APIKeyHeader); got != "SECRET" {
			t.Errorf("%s = %q, want SECRET", APIKeyHeader, got)
		}
		if got := r.Header.Get("User-Agent"); got != version.UserAgent() {
			t.Errorf("User-Agent = %q, want %q", got, version.UserAgent())
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(settingsResponse))
	}))
	defer server.Close()

	doc, err := newTestClient(server.URL).GetSettings(context.Background())
	if err != nil {
		t.Fatalf("GetSettings() error = %v", err)
	}

	baud, _ := Lookup(doc, []string{"serial", "baudrate"})
	if baud != 115200 {
		t.Errorf("serial.baudrate = %#v, want int 115200", baud)
	}
	detection, _ := Lookup(doc, []string{"serial", "timeoutDetection"})
	if detection != 0.5 {
		t.Errorf("serial.timeoutDetection = %#v, want 0.5", detection)
	}
}

func TestUpdateSettings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s, want application/json", ct)
		}
		var patch map[string]any
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		serial, _ := patch["serial"].(map[string]any)
		if serial["autoconnect"] != true {
			t.Errorf("patch = %v, want serial.autoconnect=true", patch)
		}
		_, _ = w.Write([]byte(`{"serial":{"autoconnect":true}}`))
	}))
	defer server.Close()

	doc, err := newTestClient(server.URL).UpdateSettings(context.Background(), map[string]any{
		"serial": map[string]any{"autoconnect": true},
	})
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if got, _ := Lookup(doc, []string{"serial", "autoconnect"}); got != true {
		t.Errorf("serial.autoconnect = %v, want true", got)
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"server":"1.0.0","commit":"abc123"}`))
	}))
	defer server.Close()

	info, err := newTestClient(server.URL).Version(context.Background())
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if info.Server != "1.0.0" || info.Commit != "abc123" {
		t.Errorf("Version() = %+v", info)
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "Settings applied but not saved: disk full", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).UpdateSettings(context.Background(), map[string]any{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Body, "not saved") {
		t.Errorf("Body = %q, want server message", apiErr.Body)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	for _, tc := range []struct {
		status int
		want   ErrorType
	}{
		{http.StatusUnauthorized, ErrTypeAuth},
		{http.StatusForbidden, ErrTypeForbidden},
		{http.StatusBadRequest, ErrTypeHTTP},
	} {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).GetSettings(context.Background())
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *APIError", err)
			}
			if apiErr.Type != tc.want {
				t.Errorf("Type = %v, want %v", apiErr.Type, tc.want)
			}
			if attempts.Load() != 1 {
				t.Errorf("attempts = %d, want 1", attempts.Load())
			}
		})
	}
}

func TestParseErrorIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetSettings(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Type != ErrTypeParse {
		t.Fatalf("error = %v, want parse error", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1", attempts.Load())
	}
}

func TestConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := newTestClient(url)
	c.SetRetry(0, time.Millisecond)

	_, err := c.GetSettings(context.Background())
	if !IsNetworkError(err) {
		t.Fatalf("error = %v, want network error", err)
	}
}

func TestContextCancelsBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	c.SetRetry(5, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.GetSettings(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("backoff ignored the context")
	}
}

func TestUpdateAndVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"serial":{"autoconnect":true,"baudrate":115200},"webcam":{"ffmpegThreads":4}}`))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).UpdateAndVerify(context.Background(), map[string]any{
		"serial": map[string]any{"autoconnect": true, "baudrate": "fast"},
		"webcam": map[string]any{"ffmpegThreads": "4"},
	})
	if err != nil {
		t.Fatalf("UpdateAndVerify() error = %v", err)
	}
	if result.Success() {
		t.Fatal("Success() = true, want the baudrate mismatch")
	}
	if len(result.Mismatches) != 1 || !strings.HasPrefix(result.Mismatches[0], "serial.baudrate:") {
		t.Errorf("Mismatches = %v, want only serial.baudrate", result.Mismatches)
	}
}
