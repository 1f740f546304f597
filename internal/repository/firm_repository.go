package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/capital-declarations-api/internal/models"
)

// FirmRepository reads firm branding and client identity.
type FirmRepository struct {
	db *sqlx.DB
}

// NewFirmRepository constructs the repository.
func NewFirmRepository(db *sqlx.DB) *FirmRepository {
	return &FirmRepository{db: db}
}

// GetBranding returns the presentation details of a firm.
func (r *FirmRepository) GetBranding(ctx context.Context, firmID string) (*models.FirmBranding, error) {
	const query = `SELECT id, name, logo_url, primary_color, contact_email, contact_phone FROM firms WHERE id = $1`
	var branding models.FirmBranding
	if err := r.db.GetContext(ctx, &branding, query, firmID); err != nil {
		return nil, err
	}
	return &branding, nil
}

// GetClient returns a client scoped to its firm.
func (r *FirmRepository) GetClient(ctx context.Context, firmID, clientID string) (*models.Client, error) {
	const query = `SELECT id, firm_id, full_name, email, phone FROM clients WHERE id = $1 AND firm_id = $2`
	var client models.Client
	if err := r.db.GetContext(ctx, &client, query, clientID, firmID); err != nil {
		return nil, missingOnMalformedID(err)
	}
	return &client, nil
}
