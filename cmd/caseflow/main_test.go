package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Megagig/pharmacy-monorepo-sub016/internal/config"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/analysis"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/history"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/intake"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/cache"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/db"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/workflow"
)

type nopService struct{}

func (nopService) Submit(context.Context, intake.AnalysisRequest) (string, error) { return "r1", nil }
func (nopService) Poll(context.Context, string, int) (*analysis.RawAnalysisResponse, error) {
	return &analysis.RawAnalysisResponse{}, nil
}
func (nopService) FetchHistory(context.Context, string, int, int) (history.HistoryPage, error) {
	return history.HistoryPage{}, nil
}
func (nopService) AddNote(context.Context, string, string) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Port:                   "0",
		Env:                    "development",
		LogLevel:               "info",
		AnalysisBaseURL:        "http://127.0.0.1:1",
		AnalysisRequestTimeout: 5 * time.Second,
		PollMaxAttempts:        30,
		PollInterval:           time.Second,
		DraftDebounce:          2 * time.Second,
		DraftTTL:               time.Hour,
		AnalysisTTL:            24 * time.Hour,
		HistoryPageSize:        10,
		CacheBackend:           config.CacheBackendMemory,
		CacheMaxEntries:        100,
		CORSOrigins:            []string{"http://localhost:3000"},
	}
}

// ---------------------------------------------------------------------------
// resolveSigningKey tests
// ---------------------------------------------------------------------------

func TestResolveSigningKey_Hex(t *testing.T) {
	want := []byte("0123456789abcdef0123456789abcdef")
	got, generated, err := resolveSigningKey(hex.EncodeToString(want))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if generated {
		t.Error("expected a configured key, not a generated one")
	}
	if !bytes.Equal(got, want) {
		t.Errorf("resolveSigningKey = %x, want %x", got, want)
	}
}

func TestResolveSigningKey_InvalidHex(t *testing.T) {
	if _, _, err := resolveSigningKey("not-hex"); err == nil {
		t.Fatal("expected error for invalid hex")
	}
}

func TestResolveSigningKey_Random(t *testing.T) {
	a, generated, err := resolveSigningKey("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !generated || len(a) != 32 {
		t.Fatalf("expected a generated 32-byte key, got %d bytes (generated=%v)", len(a), generated)
	}
	b, _, _ := resolveSigningKey("")
	if bytes.Equal(a, b) {
		t.Error("expected two generated keys to differ")
	}
}

// ---------------------------------------------------------------------------
// newLogger tests
// ---------------------------------------------------------------------------

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		l := newLogger(&bytes.Buffer{}, "production", tt.level)
		if got := l.GetLevel(); got != tt.want {
			t.Errorf("newLogger(%q) level = %s, want %s", tt.level, got, tt.want)
		}
	}
}

func TestNewLogger_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "production", "info")
	l.Info().Str("k", "v").Msg("hello")

	var m map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if m["message"] != "hello" || m["k"] != "v" {
		t.Errorf("unexpected log line: %v", m)
	}
}

// ---------------------------------------------------------------------------
// newServer tests
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T, cfg *config.Config, checks map[string]db.Check) http.Handler {
	t.Helper()
	svc := &nopService{}
	c := cache.New(cache.NewMemoryStore(0), zerolog.Nop(), cache.Namespaces(0, 0))
	registry := workflow.NewRegistry(controllerFactory(cfg, svc, c, zerolog.Nop()))
	t.Cleanup(registry.CloseAll)

	e, err := newServer(cfg, zerolog.Nop(), registry, checks, nil)
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	return e
}

func TestNewServer_Health(t *testing.T) {
	h := newTestServer(t, testConfig(), map[string]db.Check{
		"analysis": func(context.Context) error { return nil },
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNewServer_DevCreatesSession(t *testing.T) {
	h := newTestServer(t, testConfig(), map[string]db.Check{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNewServer_ProductionRequiresToken(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	cfg.AuthSigningKey = hex.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	h := newTestServer(t, cfg, map[string]db.Check{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected health to skip auth, got %d", rec.Code)
	}
}

func TestNewServer_InvalidSigningKey(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	cfg.AuthSigningKey = "zz"
	c := cache.New(cache.NewMemoryStore(0), zerolog.Nop(), cache.Namespaces(0, 0))
	registry := workflow.NewRegistry(controllerFactory(cfg, &nopService{}, c, zerolog.Nop()))
	if _, err := newServer(cfg, zerolog.Nop(), registry, nil, nil); err == nil {
		t.Fatal("expected error for invalid signing key")
	}
}

// ---------------------------------------------------------------------------
// runAnalyze tests
// ---------------------------------------------------------------------------

const headacheDraft = `{
	"symptoms": [{"kind": "subjective", "text": "throbbing headache"}],
	"duration": "3 days",
	"severity": "moderate",
	"onset": "acute"
}`

func TestRunAnalyze_Simulated(t *testing.T) {
	opts := analyzeOptions{patientID: "p1", consent: true, simulate: true, timeout: 30 * time.Second}
	var out bytes.Buffer
	if err := runAnalyze(context.Background(), testConfig(), zerolog.Nop(), opts, strings.NewReader(headacheDraft), &out); err != nil {
		t.Fatalf("runAnalyze: %v", err)
	}

	var got analysis.NormalizedAnalysis
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("expected analysis JSON, got %q: %v", out.String(), err)
	}
	if len(got.DifferentialDiagnoses) == 0 || got.PrimaryDiagnosis().Condition == analysis.UnknownCondition {
		t.Errorf("expected a primary diagnosis, got %+v", got.DifferentialDiagnoses)
	}
	if got.Disclaimer == "" {
		t.Error("expected a disclaimer")
	}
}

func TestRunAnalyze_RequiresConsent(t *testing.T) {
	opts := analyzeOptions{patientID: "p1", simulate: true, timeout: 5 * time.Second}
	err := runAnalyze(context.Background(), testConfig(), zerolog.Nop(), opts, strings.NewReader(headacheDraft), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "--consent") {
		t.Fatalf("expected consent error, got %v", err)
	}
}

func TestRunAnalyze_InvalidDraft(t *testing.T) {
	opts := analyzeOptions{patientID: "p1", consent: true, simulate: true, timeout: 5 * time.Second}
	err := runAnalyze(context.Background(), testConfig(), zerolog.Nop(), opts, strings.NewReader(`{"symptoms": []}`), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "symptoms") {
		t.Fatalf("expected validation error naming symptoms, got %v", err)
	}
}

func TestRunAnalyze_BadJSON(t *testing.T) {
	opts := analyzeOptions{patientID: "p1", simulate: true, timeout: time.Second}
	if err := runAnalyze(context.Background(), testConfig(), zerolog.Nop(), opts, strings.NewReader("{"), &bytes.Buffer{}); err == nil {
		t.Fatal("expected decode error")
	}
}
