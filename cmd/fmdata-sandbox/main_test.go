package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestParseFailConfig(t *testing.T) {
	cfg, err := parseFailConfig("rate=0.5, code=952")
	if err != nil {
		t.Fatalf("parseFailConfig: %v", err)
	}
	if cfg.rate != 0.5 || cfg.code != 952 {
		t.Fatalf("unexpected config %+v", cfg)
	}

	cfg, err = parseFailConfig("rate=1")
	if err != nil {
		t.Fatalf("parseFailConfig: %v", err)
	}
	if cfg.code != 100 {
		t.Fatalf("expected default code 100, got %d", cfg.code)
	}

	for _, raw := range []string{"rate", "rate=x", "rate=2", "code=abc", "speed=1"} {
		if _, err := parseFailConfig(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestInjectAlwaysFails(t *testing.T) {
	e := echo.New()
	e.Use(inject(0, failConfig{rate: 1, code: 952}))
	e.GET("/fmi/data/v1/databases/db/layouts", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/Streaming/:object", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fmi/data/v1/databases/db/layouts", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/Streaming/abc", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected streaming to pass, got %d", rec.Code)
	}
}
