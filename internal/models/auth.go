package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the staff roles inside a firm.
type UserRole string

const (
	RoleOwner UserRole = "OWNER"
	RoleAdmin UserRole = "ADMIN"
	RoleStaff UserRole = "STAFF"
)

// JWTClaims represents the JWT payload issued by the identity service.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	FirmID   string   `json:"firm_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
