package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// GzipRequestMiddleware decompresses gzip-encoded request bodies so handlers can
// work with plain JSON payloads. Requests with invalid gzip payloads are
// rejected with a 400 response. Reads past maxDecoded bytes of decompressed
// data fail with errBodyTooLarge.
func GzipRequestMiddleware(maxDecoded int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !hasGzipEncoding(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}

			body := req.Body
			gr, err := gzip.NewReader(body)
			if err != nil {
				_ = body.Close()
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}

			req.Body = &gzipReadCloser{Reader: gr, body: body, limit: maxDecoded, remaining: maxDecoded}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)

			return next(c)
		}
	}
}

func hasGzipEncoding(header string) bool {
	if header == "" {
		return false
	}
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

type gzipReadCloser struct {
	*gzip.Reader
	body io.Closer

	// limit <= 0 disables the limit.
	limit     int64
	remaining int64
	exceeded  bool
}

func (g *gzipReadCloser) Read(p []byte) (int, error) {
	if g.exceeded {
		return 0, errBodyTooLarge
	}
	if g.limit <= 0 {
		return g.Reader.Read(p)
	}
	if int64(len(p)) > g.remaining+1 {
		p = p[:g.remaining+1]
	}
	n, err := g.Reader.Read(p)
	g.remaining -= int64(n)
	if g.remaining < 0 {
		g.exceeded = true
		return n + int(g.remaining), errBodyTooLarge
	}
	return n, err
}

// Exceeded reports whether the decoded body hit the size limit.
func (g *gzipReadCloser) Exceeded() bool { return g.exceeded }

func (g *gzipReadCloser) Close() error {
	var err error
	if g.Reader != nil {
		err = g.Reader.Close()
	}
	if g.body != nil {
		if cerr := g.body.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
