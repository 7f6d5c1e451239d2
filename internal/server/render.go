package server

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	apperrors "github.com/easyfix/easyfix-go/internal/errors"
)

// renderError writes the structured error body for a taxonomy error.
// Errors from outside the taxonomy render as internal.
func renderError(c *gin.Context, err error) {
	kind := apperrors.GetKind(err)

	message := err.Error()
	if kind == apperrors.KindInternal || kind == apperrors.KindUpstream {
		// Do not leak backend details; the full error goes to the log.
		slog.Default().Error("request failed",
			"path", c.Request.URL.Path, "kind", apperrors.KindString(kind), "error", err)
		if kind == apperrors.KindInternal {
			message = "internal error"
		} else {
			message = "upstream service unavailable"
		}
	}

	c.JSON(apperrors.HTTPStatus(kind), gin.H{
		"error": gin.H{
			"kind":    apperrors.KindString(kind),
			"message": message,
		},
	})
}

// renderBindingError maps gin/validator binding failures to validation errors.
func renderBindingError(c *gin.Context, err error) {
	renderError(c, apperrors.Validationf("invalid request body: %v", err))
}
