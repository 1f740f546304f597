package models

// FirmBranding is the read-only firm presentation shown in the client portal.
type FirmBranding struct {
	ID           string  `db:"id" json:"id"`
	Name         string  `db:"name" json:"name"`
	LogoURL      *string `db:"logo_url" json:"logoUrl,omitempty"`
	PrimaryColor *string `db:"primary_color" json:"primaryColor,omitempty"`
	ContactEmail *string `db:"contact_email" json:"contactEmail,omitempty"`
	ContactPhone *string `db:"contact_phone" json:"contactPhone,omitempty"`
}

// Client is the person a declaration is filed for.
type Client struct {
	ID       string  `db:"id" json:"id"`
	FirmID   string  `db:"firm_id" json:"firmId"`
	FullName string  `db:"full_name" json:"fullName"`
	Email    *string `db:"email" json:"email,omitempty"`
	Phone    *string `db:"phone" json:"phone,omitempty"`
}
