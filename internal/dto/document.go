package dto

import "github.com/noah-isme/capital-declarations-api/internal/models"

// PortalUpload carries one file sent through the client portal.
type PortalUpload struct {
	FileType string `validate:"required,max=64"`
	FileName string `validate:"required,max=255"`
	MimeType string
	Data     []byte
}

// ReviewDocumentRequest records a staff decision on an uploaded document.
type ReviewDocumentRequest struct {
	Status models.DocumentStatus `json:"status" validate:"required,oneof=approved rejected pending"`
	Note   *string               `json:"note" validate:"omitempty,max=2000"`
}

// DocumentDownload is a short-lived signed link to a stored document.
type DocumentDownload struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt"`
}
