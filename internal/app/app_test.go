package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/bento/internal/config"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BENTO_IDENTITY__ISSUER", "http://localhost:8081/realms/ims")
	t.Setenv("BENTO_IDENTITY__REDIRECT_URL", "http://localhost:3000/auth/callback")
}

func testConfig(t *testing.T, realtimeEnabled bool) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Identity.Issuer = "http://localhost:8081/realms/ims"
	cfg.Identity.RedirectURL = "http://localhost:3000/auth/callback"
	cfg.Realtime.Enabled = realtimeEnabled
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	return &cfg
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BENTO_LOG__LEVEL", "warn")

	var buf bytes.Buffer
	cfg, err := Init(&buf, "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.Identity.Issuer != "http://localhost:8081/realms/ims" {
		t.Errorf("Identity.Issuer = %q", cfg.Identity.Issuer)
	}

	// 設定されたレベル未満のログは出力されない
	slog.Default().Info("suppressed")
	slog.Default().Warn("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a single JSON log line, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_ReadsConfigFile(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "bento.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"4000\"\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Init(io.Discard, path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Server.Port != "4000" {
		t.Errorf("Server.Port = %q, want 4000", cfg.Server.Port)
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	t.Setenv("BENTO_IDENTITY__ISSUER", "")
	t.Setenv("BENTO_IDENTITY__REDIRECT_URL", "")

	cfg, err := Init(io.Discard, "")
	if err == nil {
		t.Fatal("expected error for missing required config, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestRun_WithMissingConfig_ReturnsError(t *testing.T) {
	t.Setenv(configEnv, "")
	t.Setenv("BENTO_IDENTITY__ISSUER", "")
	t.Setenv("BENTO_IDENTITY__REDIRECT_URL", "")

	if err := Run(io.Discard, []string{"serve"}); err == nil {
		t.Fatal("Run with missing config should return error")
	}
}

func TestBuildServices_HealthAndMetrics(t *testing.T) {
	tests := []struct {
		name         string
		realtime     bool
		wantRealtime string
	}{
		{"realtime disabled", false, "disabled"},
		{"realtime not yet connected", true, "disconnected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := buildServices(testConfig(t, tt.realtime), slog.New(slog.NewJSONHandler(io.Discard, nil)))
			t.Cleanup(svc.close)

			w := httptest.NewRecorder()
			svc.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			var body map[string]string
			json.NewDecoder(w.Body).Decode(&body)
			if body["session"] != "unauthenticated" || body["realtime"] != tt.wantRealtime {
				t.Errorf("body = %v", body)
			}

			w = httptest.NewRecorder()
			svc.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			if !strings.Contains(w.Body.String(), "go_goroutines") {
				t.Error("/metrics should expose runtime metrics")
			}
		})
	}
}

func TestBuildServices_APIRequiresSession(t *testing.T) {
	svc := buildServices(testConfig(t, false), slog.New(slog.NewJSONHandler(io.Discard, nil)))
	t.Cleanup(svc.close)

	w := httptest.NewRecorder()
	svc.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestBuildServices_LoginRedirectsToIdentityProvider(t *testing.T) {
	svc := buildServices(testConfig(t, false), slog.New(slog.NewJSONHandler(io.Discard, nil)))
	t.Cleanup(svc.close)

	w := httptest.NewRecorder()
	svc.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", w.Code)
	}
	loc := w.Header().Get("Location")
	if !strings.HasPrefix(loc, "http://localhost:8081/realms/ims/protocol/openid-connect/auth?") {
		t.Errorf("Location = %q", loc)
	}
}

func TestRunServe_StopsWhenContextCancelled(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.Server.Port = "0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("runServe returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runServe did not stop after cancellation")
	}
}

func TestRunHealthcheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	if err := runHealthcheck(u.Port()); err != nil {
		t.Errorf("runHealthcheck returned error: %v", err)
	}
}

func TestRunHealthcheck_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	if err := runHealthcheck(u.Port()); err == nil {
		t.Error("expected error for non-200 health check")
	}
}

func TestHealthcheckPort(t *testing.T) {
	t.Setenv("BENTO_SERVER__PORT", "")
	if got := healthcheckPort(); got != "3000" {
		t.Errorf("healthcheckPort() = %q, want 3000", got)
	}
	t.Setenv("BENTO_SERVER__PORT", "9090")
	if got := healthcheckPort(); got != "9090" {
		t.Errorf("healthcheckPort() = %q, want 9090", got)
	}
}
