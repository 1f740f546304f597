package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/capital-declarations-api/internal/models"
	appErrors "github.com/noah-isme/capital-declarations-api/pkg/errors"
	"github.com/noah-isme/capital-declarations-api/pkg/response"
)

// RequireRoles only lets staff with one of roles through.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" may not perform this action"))
			c.Abort()
			return
		}
		c.Next()
	}
}
