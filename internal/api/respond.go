package api

import (
	"net/http"

	"waba-gateway/internal/apperrors"
	"waba-gateway/internal/log"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// respondError maps the error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var (
		validationErr *apperrors.ValidationError
		recipientErr  *apperrors.InvalidRecipientError
		onboardErr    *apperrors.NotOnboardedError
		finishedErr   *apperrors.AlreadyFinishedError
		authErr       *apperrors.AuthError
		notFoundErr   *apperrors.NotFoundError
		providerErr   *apperrors.ProviderError
	)

	switch {
	case errors.As(err, &validationErr),
		errors.As(err, &recipientErr),
		errors.As(err, &onboardErr),
		errors.As(err, &finishedErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &authErr):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &providerErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		log.Logger.WithError(err).Error("internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
