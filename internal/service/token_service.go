package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/capital-declarations-api/internal/models"
	"github.com/noah-isme/capital-declarations-api/internal/repository"
	"github.com/noah-isme/capital-declarations-api/pkg/config"
	appErrors "github.com/noah-isme/capital-declarations-api/pkg/errors"
)

const (
	tokenBytes       = 32
	maxIssueAttempts = 3
)

type declarationTokenStore interface {
	FindForPortal(ctx context.Context, id string) (*models.Declaration, error)
	IssueToken(ctx context.Context, firmID, id, token string, expiresAt time.Time) error
	RenewToken(ctx context.Context, id, token string, target, now time.Time) (time.Time, error)
	RevokeToken(ctx context.Context, firmID, id string) error
}

// TokenService mints, checks and slides the expiry of public portal tokens.
type TokenService struct {
	store   declarationTokenStore
	ttl     time.Duration
	baseURL string
	logger  *zap.Logger
	random  io.Reader
	now     func() time.Time
}

// NewTokenService constructs the token issuer. A non-positive ttl falls back to the default portal window.
func NewTokenService(store declarationTokenStore, ttl time.Duration, baseURL string, logger *zap.Logger) *TokenService {
	if ttl <= 0 {
		ttl = config.DefaultPortalTokenTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{
		store:   store,
		ttl:     ttl,
		baseURL: baseURL,
		logger:  logger,
		random:  rand.Reader,
		now:     time.Now,
	}
}

// Issue replaces any existing token with a fresh one and clears the access counters.
func (s *TokenService) Issue(ctx context.Context, firmID, declarationID string) (models.IssuedToken, error) {
	expiresAt := s.now().UTC().Add(s.ttl)
	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		token, err := s.generate()
		if err != nil {
			return models.IssuedToken{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate portal token")
		}
		err = s.store.IssueToken(ctx, firmID, declarationID, token, expiresAt)
		switch {
		case err == nil:
			s.logger.Info("portal token issued",
				zap.String("firm_id", firmID),
				zap.String("declaration_id", declarationID),
				zap.Time("expires_at", expiresAt),
			)
			return models.IssuedToken{Token: token, ExpiresAt: expiresAt, PortalURL: s.PortalURL(token)}, nil
		case errors.Is(err, repository.ErrTokenCollision):
			s.logger.Warn("portal token collision, regenerating", zap.Int("attempt", attempt))
			continue
		case errors.Is(err, sql.ErrNoRows):
			return models.IssuedToken{}, appErrors.Clone(appErrors.ErrNotFound, "declaration not found")
		default:
			return models.IssuedToken{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store portal token")
		}
	}
	return models.IssuedToken{}, appErrors.Clone(appErrors.ErrInternal, "could not generate a unique portal token")
}

// Validate checks an (id, token) pair. It fails closed: lookup errors and
// mismatches both report an invalid token.
func (s *TokenService) Validate(ctx context.Context, declarationID, token string) (models.TokenCheck, error) {
	if declarationID == "" || token == "" {
		return models.TokenCheck{}, nil
	}
	decl, err := s.store.FindForPortal(ctx, declarationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TokenCheck{}, nil
		}
		return models.TokenCheck{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load declaration")
	}
	if !decl.HasToken() || subtle.ConstantTimeCompare([]byte(*decl.PublicToken), []byte(token)) != 1 {
		return models.TokenCheck{}, nil
	}
	return models.TokenCheck{
		Valid:       true,
		Expired:     decl.TokenExpired(s.now()),
		Declaration: decl,
	}, nil
}

// Renew slides the expiry to now+ttl. The stored expiry never moves backwards
// and an already expired token is not revived.
func (s *TokenService) Renew(ctx context.Context, declarationID, token string) (time.Time, error) {
	now := s.now().UTC()
	expiresAt, err := s.store.RenewToken(ctx, declarationID, token, now.Add(s.ttl), now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, appErrors.Clone(appErrors.ErrInvalidLink, "")
		}
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to renew portal token")
	}
	return expiresAt, nil
}

// Revoke detaches the portal token from a declaration.
func (s *TokenService) Revoke(ctx context.Context, firmID, declarationID string) error {
	if err := s.store.RevokeToken(ctx, firmID, declarationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "declaration not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke portal token")
	}
	s.logger.Info("portal token revoked", zap.String("firm_id", firmID), zap.String("declaration_id", declarationID))
	return nil
}

// PortalURL builds the client facing link for token.
func (s *TokenService) PortalURL(token string) string {
	if s.baseURL == "" {
		return token
	}
	return s.baseURL + "/" + url.PathEscape(token)
}

func (s *TokenService) generate() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
