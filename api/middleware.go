package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// GzipRequestMiddleware transparently inflates gzip-compressed request
// bodies so handlers only ever see plain bytes. A body that declares gzip
// but does not open as one is rejected with a 400.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !declaresGzip(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}

			raw := req.Body
			zr, err := gzip.NewReader(raw)
			if err != nil {
				_ = raw.Close()
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}

			req.Body = inflatedBody{zr: zr, raw: raw}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

// declaresGzip walks the Content-Encoding list without allocating a slice.
func declaresGzip(header string) bool {
	for header != "" {
		var enc string
		enc, header, _ = strings.Cut(header, ",")
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

// inflatedBody closes both the gzip reader and the wrapped network body.
type inflatedBody struct {
	zr  *gzip.Reader
	raw io.Closer
}

func (b inflatedBody) Read(p []byte) (int, error) { return b.zr.Read(p) }

func (b inflatedBody) Close() error {
	zerr := b.zr.Close()
	rerr := b.raw.Close()
	if zerr != nil {
		return zerr
	}
	return rerr
}
