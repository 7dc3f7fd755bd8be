package errors

import (
	stderrors "errors"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// Classifier converts a domain error into problem details. It returns nil
// for errors it does not recognise.
type Classifier func(err error, instance string) *ProblemDetails

// Handler writes errors as RFC 7807 responses
type Handler struct {
	classify Classifier
}

// NewHandler creates an error handler. classify may be nil.
func NewHandler(classify Classifier) *Handler {
	return &Handler{classify: classify}
}

// HandleError converts err and writes it to the response
func (h *Handler) HandleError(c *gin.Context, err error) {
	instance := c.Request.URL.Path

	var problemDetails *ProblemDetails
	if !stderrors.As(err, &problemDetails) {
		if h.classify != nil {
			problemDetails = h.classify(err, instance)
		}
		if problemDetails == nil {
			problemDetails = NewInternalError(err.Error(), instance)
		}
	}
	h.Write(c, problemDetails)
}

// Write sends the problem details, stamping the trace id when one is known
func (h *Handler) Write(c *gin.Context, problemDetails *ProblemDetails) {
	if traceID := getTraceID(c); traceID != "" {
		problemDetails.WithTraceID(traceID)
	}
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(problemDetails.Status, problemDetails)
}

// Middleware converts the last error attached by a handler into a response
func (h *Handler) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			h.HandleError(c, c.Errors.Last().Err)
		}
	}
}

func getTraceID(c *gin.Context) string {
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return c.GetHeader("X-Trace-ID")
}
