package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mxi/presale/internal/infrastructure/telemetry"
)

// Profiling attaches Pyroscope labels (method, route pattern and API group)
// to the samples taken while a request is served. Paths in skip are served
// unlabelled.
func Profiling(enabled bool, skip ...string) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skipped[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		route := c.FullPath()
		labels := map[string]string{
			telemetry.ProfilingLabelMethod: c.Request.Method,
			telemetry.ProfilingLabelRoute:  route,
			telemetry.ProfilingLabelGroup:  apiGroup(route),
		}
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

// apiGroup returns the first path segment after the version prefix,
// e.g. "/api/v1/payments/:order_id" -> "payments", "/api/v1/admin/..." -> "admin".
func apiGroup(route string) string {
	segments := strings.Split(strings.Trim(route, "/"), "/")
	for _, seg := range segments {
		if seg == "" || seg == "api" || isVersionSegment(seg) || strings.HasPrefix(seg, ":") {
			continue
		}
		return seg
	}
	return ""
}

func isVersionSegment(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
