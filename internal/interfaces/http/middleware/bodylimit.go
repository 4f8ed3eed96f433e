package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/erp/weclapp-migration/internal/interfaces/http/dto"
)

// BodyLimit rejects request bodies larger than maxBytes. Declared lengths
// are refused up front; chunked bodies fail on read with
// *http.MaxBytesError, which HandleValidationError turns into the same 413.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			abortTooLarge(c, maxBytes)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func abortTooLarge(c *gin.Context, limit int64) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponseWithRequestID(
		dto.ErrCodePayloadTooLarge,
		"Request body exceeds "+strconv.FormatInt(limit, 10)+" bytes",
		GetRequestID(c),
	))
}
