package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/p-n-ai/pai-pathfinder/internal/httpapi"
	"github.com/p-n-ai/pai-pathfinder/internal/platform/config"
)

func TestHealthEndpoints(t *testing.T) {
	mux := newMux()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestReadyz_FailingCheck(t *testing.T) {
	mux := newMux(
		readinessCheck{name: "database", check: func(context.Context) error { return nil }},
		readinessCheck{name: "cache", check: func(context.Context) error { return errors.New("down") }},
	)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if want := `{"status":"unavailable","check":"cache"}`; rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
}

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	curriculumDir := filepath.Join(dir, "curriculum")
	if err := os.MkdirAll(curriculumDir, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"a.yaml": "id: A\ntitle: Alpha\nposition: 1\n",
		"b.yaml": "id: B\ntitle: Beta\nposition: 2\nprerequisites: [A]\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(curriculumDir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	return &config.Config{
		Server:         config.ServerConfig{Port: 8080},
		Store:          config.StoreConfig{Driver: driver},
		SQLite:         config.SQLiteConfig{Path: filepath.Join(dir, "pathfinder.db")},
		Catalog:        config.CatalogConfig{Source: config.CatalogYAML},
		Auth:           config.AuthConfig{JWTSecret: "test-secret"},
		Path:           config.PathConfig{MaxPaths: 10},
		CurriculumPath: curriculumDir,
	}
}

func TestBuildApp(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sqliteFromDB := testConfig(t, config.StoreSQLite)
	sqliteFromDB.Catalog = config.CatalogConfig{Source: config.CatalogDatabase, Sync: true}

	for name, cfg := range map[string]*config.Config{
		"memory":         testConfig(t, config.StoreMemory),
		"sqlite":         testConfig(t, config.StoreSQLite),
		"sqlite catalog": sqliteFromDB,
	} {
		t.Run(name, func(t *testing.T) {
			a, err := buildApp(t.Context(), cfg, logger)
			if err != nil {
				t.Fatalf("buildApp() error = %v", err)
			}
			defer a.Close()

			auth, _ := httpapi.NewAuthenticator(cfg.Auth.JWTSecret)
			token, _ := auth.IssueToken("u1", time.Hour)

			req := httptest.NewRequest(http.MethodGet, "/recommendation/B?currentConceptId=root", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			a.handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Errorf("recommendation status = %d, body = %s", rec.Code, rec.Body.String())
			}

			rec = httptest.NewRecorder()
			a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rec.Code != http.StatusOK {
				t.Errorf("readyz status = %d", rec.Code)
			}
		})
	}
}

func TestBuildApp_MissingCurriculum(t *testing.T) {
	cfg := testConfig(t, config.StoreMemory)
	cfg.CurriculumPath = filepath.Join(t.TempDir(), "missing")

	if _, err := buildApp(t.Context(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatal("buildApp() should fail without a curriculum")
	}
}
