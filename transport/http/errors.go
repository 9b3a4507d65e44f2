package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/core"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor maps each error kind to its HTTP status.
func statusFor(kind core.Kind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNoChallenge,
		core.KindSignatureInvalid,
		core.KindTokenExpired,
		core.KindTokenMalformed,
		core.KindTokenSignatureInvalid,
		core.KindMissingBearer:
		return http.StatusUnauthorized
	case core.KindUnexpected:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes err as an ErrorResponse. Unexpected errors are logged and their
// detail is replaced with a generic message.
func abortWithError(c *gin.Context, logger *slog.Logger, err error) {
	kind := core.KindOf(err)
	status := statusFor(kind)

	message := err.Error()
	if kind == core.KindUnexpected {
		logger.ErrorContext(c.Request.Context(), "request failed",
			"request_id", RequestID(c),
			"path", c.FullPath(),
			"error", err,
		)
		message = "internal server error"
	}

	c.AbortWithStatusJSON(status, ErrorResponse{Error: kind.String(), Message: message})
}
