package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracing returns otelgin middleware that names spans "METHOD route" and
// tags them with the request ID. Disabled tracing is a pass-through.
func Tracing(serviceName string, enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	base := otelgin.Middleware(serviceName,
		otelgin.WithSpanNameFormatter(func(c *gin.Context) string {
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			return c.Request.Method + " " + route
		}),
	)
	return func(c *gin.Context) {
		if requestID := GetRequestID(c); requestID != "" {
			trace.SpanFromContext(c.Request.Context()).SetAttributes(attribute.String("request_id", requestID))
		}
		base(c)
	}
}

// SpanErrorMarker marks the request span failed for 5xx responses and tags
// it with the authenticated account. Place it after Tracing and the JWT
// middleware.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			if requestID := GetRequestID(c); requestID != "" {
				span.SetAttributes(attribute.String("request_id", requestID))
			}
			if accountID := c.GetString(AccountIDKey); accountID != "" {
				span.SetAttributes(attribute.String("account_id", accountID))
			}
		}

		c.Next()

		if !span.IsRecording() {
			return
		}
		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
