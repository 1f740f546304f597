package service

import (
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/capital-declarations-api/internal/models"
)

// NewValidator returns a validator with the declaration specific tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("declaration_status", func(fl validator.FieldLevel) bool {
		return models.DeclarationStatus(fl.Field().String()).Valid()
	})
	return v
}

func ensureValidator(v *validator.Validate) *validator.Validate {
	if v == nil {
		return NewValidator()
	}
	return v
}
