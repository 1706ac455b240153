package api

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ResponseCache stores rendered JSON bodies of the public read endpoints
type ResponseCache interface {
	Get(ctx context.Context, requestKey string) ([]byte, bool, error)
	Set(ctx context.Context, requestKey string, body []byte) error
	Health(ctx context.Context) map[string]any
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// cacheMiddleware serves GET requests from the cache and stores successful
// responses. Cache errors never fail a request.
func cacheMiddleware(cache ResponseCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		requestKey := c.Request.URL.Path + "?" + c.Request.URL.RawQuery

		body, ok, err := cache.Get(ctx, requestKey)
		if err != nil {
			slog.Warn("Response cache read failed", "path", c.Request.URL.Path, "error", err)
		}
		if ok {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "application/json; charset=utf-8", body)
			c.Abort()
			return
		}

		c.Header("X-Cache", "MISS")
		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder

		c.Next()

		if recorder.Status() != http.StatusOK {
			return
		}
		if err := cache.Set(ctx, requestKey, recorder.body.Bytes()); err != nil {
			slog.Warn("Response cache write failed", "path", c.Request.URL.Path, "error", err)
		}
	}
}
