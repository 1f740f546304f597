package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMalformedSignature = errors.New("invalid signed url format")
	ErrBadSignature       = errors.New("invalid signed url signature")
	ErrSignatureExpired   = errors.New("signed url expired")
)

// SignedURLSigner creates and validates short-lived download tokens for stored
// documents. A token binds the document id to its storage key.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token for documentID and key plus its expiry.
func (s *SignedURLSigner) Sign(documentID, key string) (string, time.Time, error) {
	if documentID == "" || key == "" {
		return "", time.Time{}, fmt.Errorf("document id and key required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).UTC()
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedKey := base64.RawURLEncoding.EncodeToString([]byte(key))
	token := strings.Join([]string{documentID, ts, encodedKey, s.mac(documentID, ts, encodedKey)}, ".")
	return token, expiresAt, nil
}

// Verify checks the token signature and expiry and returns the bound values.
func (s *SignedURLSigner) Verify(token string) (documentID, key string, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", ErrMalformedSignature
	}
	documentID, ts, encodedKey, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.mac(documentID, ts, encodedKey)), []byte(signature)) {
		return "", "", ErrBadSignature
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", "", ErrMalformedSignature
	}
	if s.now().After(time.Unix(expUnix, 0)) {
		return "", "", ErrSignatureExpired
	}
	rawKey, err := base64.RawURLEncoding.DecodeString(encodedKey)
	if err != nil {
		return "", "", ErrMalformedSignature
	}
	return documentID, string(rawKey), nil
}

func (s *SignedURLSigner) mac(documentID, ts, encodedKey string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(documentID + "|" + ts + "|" + encodedKey))
	return hex.EncodeToString(mac.Sum(nil))
}
