package api

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func bodyEchoHandler(t *testing.T, got *string) echo.HandlerFunc {
	t.Helper()
	return func(c echo.Context) error {
		data, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		*got = string(data)
		return c.NoContent(http.StatusOK)
	}
}

func TestGzipRequestMiddlewareInflates(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(`{"title":"call"}`)); err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", &buf)
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got string
	if err := GzipRequestMiddleware()(bodyEchoHandler(t, &got))(c); err != nil {
		t.Fatalf("middleware returned error: %v", err)
	}
	if got != `{"title":"call"}` {
		t.Fatalf("unexpected inflated body: %q", got)
	}
	if req.Header.Get(echo.HeaderContentEncoding) != "" {
		t.Fatal("expected content encoding header to be dropped")
	}
}

func TestGzipRequestMiddlewarePassesPlainBodies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(`{"title":"call"}`))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got string
	if err := GzipRequestMiddleware()(bodyEchoHandler(t, &got))(c); err != nil {
		t.Fatalf("middleware returned error: %v", err)
	}
	if got != `{"title":"call"}` {
		t.Fatalf("unexpected body: %q", got)
	}
}

func TestGzipRequestMiddlewareRejectsBadGzip(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader("definitely not gzip"))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := GzipRequestMiddleware()(func(c echo.Context) error {
		t.Fatal("handler must not run for an unopenable body")
		return nil
	})(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestDeclaresGzip(t *testing.T) {
	cases := map[string]bool{
		"gzip":          true,
		"GZIP":          true,
		"br, gzip":      true,
		" gzip , br":    true,
		"br":            false,
		"":              false,
		"gzipped-thing": false,
	}
	for header, want := range cases {
		if got := declaresGzip(header); got != want {
			t.Fatalf("declaresGzip(%q) = %v, want %v", header, got, want)
		}
	}
}
