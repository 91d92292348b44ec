package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runHealth(t *testing.T, checks map[string]Check) (int, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := HealthHandler(checks)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec.Code, body
}

func TestHealthHandler_AllHealthy(t *testing.T) {
	ok := func(context.Context) error { return nil }
	code, body := runHealth(t, map[string]Check{"postgres": ok, "analysis": ok})

	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
	checks := body["checks"].(map[string]interface{})
	if checks["postgres"] != "ok" || checks["analysis"] != "ok" {
		t.Errorf("unexpected checks: %v", checks)
	}
}

func TestHealthHandler_FailingCheck(t *testing.T) {
	code, body := runHealth(t, map[string]Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	checks := body["checks"].(map[string]interface{})
	if checks["redis"] != "connection refused" {
		t.Errorf("expected redis failure reported, got %v", checks["redis"])
	}
}

func TestHealthHandler_NoChecks(t *testing.T) {
	code, _ := runHealth(t, nil)
	if code != http.StatusOK {
		t.Errorf("expected 200 with no checks, got %d", code)
	}
}

func TestHealthHandler_DeadlinePropagates(t *testing.T) {
	var hadDeadline bool
	runHealth(t, map[string]Check{"db": func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}})
	if !hadDeadline {
		t.Error("expected checks to run with a deadline")
	}
}
