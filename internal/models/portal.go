package models

import "time"

// PortalDeclaration is the declaration summary exposed to unauthenticated clients.
type PortalDeclaration struct {
	ID                   string            `json:"id"`
	TaxYear              int               `json:"taxYear"`
	Status               DeclarationStatus `json:"status"`
	PublicTokenExpiresAt *time.Time        `json:"expiresAt,omitempty"`
}

// PortalView is what the client portal renders for a token. When IsExpired is
// set only Declaration and Firm.Name are populated.
type PortalView struct {
	IsExpired     bool              `json:"isExpired"`
	IsFirstAccess bool              `json:"isFirstAccess"`
	Declaration   PortalDeclaration `json:"declaration"`
	Firm          FirmBranding      `json:"firm"`
	Client        *Client           `json:"client,omitempty"`
	UploadedTypes map[string]bool   `json:"uploadedTypes,omitempty"`
}

// IssuedToken is returned to staff when a portal link is minted.
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	PortalURL string    `json:"portalUrl"`
}

// TokenCheck is the result of validating an (id, token) pair.
type TokenCheck struct {
	Valid       bool
	Expired     bool
	Declaration *Declaration
}
