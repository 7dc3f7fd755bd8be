package validation

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	commonerrors "github.com/Aidin1998/watchlist_screening/common/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes caps request bodies accepted by RequestGuard
const DefaultMaxBodyBytes int64 = 1 << 20

var pathParamPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

// RequestGuard rejects requests with oversized or non-JSON bodies and
// malformed path parameters before they reach a handler.
func RequestGuard(maxBodyBytes int64, logger *zap.SugaredLogger) gin.HandlerFunc {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	problems := commonerrors.NewHandler(nil)

	return func(c *gin.Context) {
		instance := c.Request.URL.Path

		for _, p := range c.Params {
			if !pathParamPattern.MatchString(p.Value) {
				problems.Write(c, commonerrors.NewValidationError(
					fmt.Sprintf("path parameter %s is malformed", p.Key), instance))
				return
			}
		}

		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if c.Request.ContentLength > maxBodyBytes {
				logger.Warnw("Request body too large",
					"path", instance,
					"content_length", c.Request.ContentLength)
				problems.Write(c, commonerrors.NewProblemDetails(commonerrors.TypeValidationError,
					"Request Entity Too Large", http.StatusRequestEntityTooLarge,
					fmt.Sprintf("request body exceeds %d bytes", maxBodyBytes), instance))
				return
			}
			if c.Request.ContentLength != 0 && !isJSON(c.ContentType()) {
				problems.Write(c, commonerrors.NewProblemDetails(commonerrors.TypeValidationError,
					"Unsupported Media Type", http.StatusUnsupportedMediaType,
					"request body must be application/json", instance))
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		}

		c.Next()
	}
}

func isJSON(contentType string) bool {
	return contentType == "application/json" || strings.HasSuffix(contentType, "+json")
}
