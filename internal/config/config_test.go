package config

import (
	"os"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/algorithm"
)

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("ATTENDANCE_ALGORITHM")
	os.Unsetenv("ATTENDANCE_GRACE_WINDOW")
	os.Unsetenv("ATTENDANCE_CONCURRENCY")
	os.Unsetenv("EMBEDDING_URL")
	os.Unsetenv("PORT")

	cfg := Load()

	if cfg.Engine.Algorithm != "facenet" {
		t.Errorf("expected default algorithm 'facenet', got '%s'", cfg.Engine.Algorithm)
	}
	if cfg.Engine.GraceWindow != 15*time.Minute {
		t.Errorf("expected default grace window 15m, got %v", cfg.Engine.GraceWindow)
	}
	if cfg.Engine.Concurrency != 4 {
		t.Errorf("expected default concurrency 4, got %d", cfg.Engine.Concurrency)
	}
	if cfg.Embedding.URL != "http://localhost:8000" {
		t.Errorf("expected default embedding URL, got '%s'", cfg.Embedding.URL)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Web.Port)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("expected default max open conns 25, got %d", cfg.Database.MaxOpenConns)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ATTENDANCE_ALGORITHM", "lbph")
	t.Setenv("ATTENDANCE_THRESHOLD", "0.42")
	t.Setenv("ATTENDANCE_GRACE_WINDOW", "10m")
	t.Setenv("ATTENDANCE_CONCURRENCY", "8")
	t.Setenv("DATABASE_URL", "postgres://localhost/attendance")
	t.Setenv("ROSTER_DATABASE_URL", "sis:sis@tcp(mariadb:3306)/sis")
	t.Setenv("PORT", "9090")

	cfg := Load()

	if cfg.Engine.Algorithm != "lbph" {
		t.Errorf("expected algorithm 'lbph', got '%s'", cfg.Engine.Algorithm)
	}
	if cfg.Engine.Threshold != 0.42 {
		t.Errorf("expected threshold 0.42, got %f", cfg.Engine.Threshold)
	}
	if cfg.Engine.GraceWindow != 10*time.Minute {
		t.Errorf("expected grace window 10m, got %v", cfg.Engine.GraceWindow)
	}
	if cfg.Engine.Concurrency != 8 {
		t.Errorf("expected concurrency 8, got %d", cfg.Engine.Concurrency)
	}
	if cfg.Database.URL != "postgres://localhost/attendance" {
		t.Errorf("unexpected database URL '%s'", cfg.Database.URL)
	}
	if cfg.Roster.DatabaseURL != "sis:sis@tcp(mariadb:3306)/sis" {
		t.Errorf("unexpected roster DSN '%s'", cfg.Roster.DatabaseURL)
	}
	if cfg.Web.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Web.Port)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("ATTENDANCE_CONCURRENCY", "banana")
	t.Setenv("ATTENDANCE_GRACE_WINDOW", "-5m")
	t.Setenv("PORT", "0")

	cfg := Load()

	if cfg.Engine.Concurrency != 4 {
		t.Errorf("expected fallback concurrency 4, got %d", cfg.Engine.Concurrency)
	}
	if cfg.Engine.GraceWindow != 15*time.Minute {
		t.Errorf("expected fallback grace window 15m, got %v", cfg.Engine.GraceWindow)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("expected fallback port 8080, got %d", cfg.Web.Port)
	}
}

func TestLoad_AlgorithmsEmbedded(t *testing.T) {
	cfg := Load()

	if len(cfg.Algorithms.Algorithms) == 0 {
		t.Fatal("expected algorithms to be loaded from embedded YAML")
	}

	for _, id := range []string{"haar_cascade", "hog", "lbph", "eigenfaces", "fisherfaces", "mtcnn", "facenet", "dlib_cnn"} {
		if _, ok := cfg.Algorithms.Algorithms[id]; !ok {
			t.Errorf("expected algorithm '%s' in embedded config", id)
		}
	}

	if got := cfg.Algorithms.Threshold("facenet"); got != 0.70 {
		t.Errorf("expected facenet threshold 0.70, got %f", got)
	}
	if got := cfg.Algorithms.Threshold("unknown"); got != 0 {
		t.Errorf("expected zero threshold for unknown algorithm, got %f", got)
	}

	if dim := cfg.Algorithms.Algorithms["facenet"].Dim; dim != 512 {
		t.Errorf("expected facenet dim 512, got %d", dim)
	}
}

// The embedded config and the adapters' built-in defaults must agree, or
// serve (config-driven) and direct adapter construction would match at
// different thresholds.
func TestLoad_AlgorithmsMatchAdapterDefaults(t *testing.T) {
	cfg := Load()

	for _, id := range algorithm.IDs() {
		adapter, err := algorithm.New(id, algorithm.Options{})
		if err != nil {
			t.Fatalf("building %s adapter: %v", id, err)
		}

		if got := cfg.Algorithms.Threshold(id); got != adapter.DefaultThreshold() {
			t.Errorf("%s: embedded threshold %.2f, adapter default %.2f", id, got, adapter.DefaultThreshold())
		}
		if dim := cfg.Algorithms.Algorithms[id].Dim; dim != 0 && dim != adapter.Dim() {
			t.Errorf("%s: embedded dim %d, adapter dim %d", id, dim, adapter.Dim())
		}
	}
}
