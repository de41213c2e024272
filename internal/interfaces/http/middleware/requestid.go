package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vinsight/vinsight/pkg/types/common"
)

// HeaderRequestID is the header carrying the request correlation ID.
const HeaderRequestID = "X-Request-ID"

// RequestID assigns every request a correlation ID.  An incoming
// X-Request-ID header is honored so IDs survive proxy hops; otherwise a
// fresh UUID is generated.  The ID is placed on the request context and
// echoed in the response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
		}

		ctx := context.WithValue(c.Request.Context(), common.ContextKeyRequestID, id)
		c.Request = c.Request.WithContext(ctx)
		c.Set(string(common.ContextKeyRequestID), id)
		c.Header(HeaderRequestID, id)

		c.Next()
	}
}

// GetRequestID returns the correlation ID for the current request, or ""
// when the RequestID middleware did not run.
func GetRequestID(c *gin.Context) string {
	if v, ok := c.Get(string(common.ContextKeyRequestID)); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
