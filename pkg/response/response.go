package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the shape of every non-2xx response: a human-readable message the
// client shows verbatim, plus optional field details.
type ErrorBody struct {
	Message   string      `json:"message"`
	RequestID string      `json:"request_id,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

// JSON writes body with the given status.
func JSON[T any](ctx *gin.Context, status int, body T) {
	if status == 0 {
		status = http.StatusOK
	}
	ctx.JSON(status, body)
}

// Error writes an ErrorBody.
func Error(ctx *gin.Context, status int, message string, details interface{}) {
	if status == 0 {
		status = http.StatusBadRequest
	}
	ctx.JSON(status, NewError(ctx, message, details))
}

// Abort writes an ErrorBody and stops the middleware chain.
func Abort(ctx *gin.Context, status int, message string, details interface{}) {
	ctx.AbortWithStatusJSON(status, NewError(ctx, message, details))
}

func NewError(ctx *gin.Context, message string, details interface{}) ErrorBody {
	return ErrorBody{
		Message:   message,
		RequestID: ctx.GetString("request_id"),
		Details:   details,
	}
}
