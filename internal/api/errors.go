package api

import (
	"errors"
	"net/http"

	"donation-service/internal/domain"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func statusFor(err error) int {
	var gwErr *domain.GatewayError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrMissingTaxInfo):
		return http.StatusUnprocessableEntity
	case errors.As(err, &gwErr):
		if gwErr.Timeout() {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the public message for err. Raw error text is only
// shown to admins.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": domain.PublicMessage(err)}
	if actorFrom(c).IsAdmin() {
		body["detail"] = err.Error()
	}
	entry := log.WithFields(log.Fields{"method": c.Request.Method, "path": c.FullPath(), "status": status, "error": err})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
}
