package service

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/capital-declarations-api/internal/models"
	appErrors "github.com/noah-isme/capital-declarations-api/pkg/errors"
)

// AuthConfig carries the verification settings for staff access tokens.
type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

// AuthService verifies staff access tokens minted by the identity service.
type AuthService struct {
	config AuthConfig
}

// NewAuthService constructs the service.
func NewAuthService(cfg AuthConfig) *AuthService {
	return &AuthService{config: cfg}
}

// ValidateToken parses and validates an HS256 access token.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	// Any one configured audience is enough.
	if len(s.config.Audience) > 0 {
		opts = append(opts, jwt.WithAudience(s.config.Audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.UserID == "" || claims.FirmID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token missing user or firm")
	}
	switch claims.Role {
	case models.RoleOwner, models.RoleAdmin, models.RoleStaff:
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "unsupported role")
	}

	return claims, nil
}
