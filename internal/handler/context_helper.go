package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/capital-declarations-api/internal/middleware"
	"github.com/noah-isme/capital-declarations-api/internal/models"
	appErrors "github.com/noah-isme/capital-declarations-api/pkg/errors"
	"github.com/noah-isme/capital-declarations-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return nil
	}
	return claims
}

// staffScope returns the caller's firm and actor, writing a 401 when absent.
func staffScope(c *gin.Context) (string, models.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil || claims.FirmID == "" || claims.UserID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", models.Actor{}, false
	}
	return claims.FirmID, models.StaffActor(claims.UserID), true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
