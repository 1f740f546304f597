package dto

import (
	"time"

	"github.com/noah-isme/capital-declarations-api/internal/models"
)

// CreateCommunicationRequest logs an interaction with the client.
type CreateCommunicationRequest struct {
	Type           models.CommunicationType      `json:"type" validate:"required,oneof=phone_call whatsapp note letter"`
	Direction      models.CommunicationDirection `json:"direction" validate:"required,oneof=outbound inbound"`
	Subject        *string                       `json:"subject" validate:"omitempty,max=300"`
	Content        *string                       `json:"content" validate:"omitempty,max=10000"`
	Outcome        *string                       `json:"outcome" validate:"omitempty,max=2000"`
	CommunicatedAt *time.Time                    `json:"communicatedAt"`
}
