package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"clinika.org/internal/ids"
)

// Claims carries identity and role information inside access tokens. Access
// tokens are stateless: expiry is enforced solely from the embedded
// timestamps and they are not individually revocable.
type Claims struct {
	TenantID string `json:"tenant"`
	RoleID   string `json:"role"`
	jwt.RegisteredClaims
}

func (s *Service) issueAccessToken(identity *Identity, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(s.accessTTL)
	claims := Claims{
		TenantID: identity.TenantID,
		RoleID:   identity.RoleID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and registered claims of an access token.
// It is pure and safe to call concurrently.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrInvalidAccessToken
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidAccessToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidAccessToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidAccessToken
	}
	if claims.Issuer != s.issuer {
		return nil, ErrInvalidAccessToken
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.RoleID) == "" {
		return nil, ErrInvalidAccessToken
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}

// ErrInvalidAccessToken indicates a bearer token that failed verification.
var ErrInvalidAccessToken = errors.New("auth: invalid access token")

const refreshSecretBytes = 32 // 256 bits of entropy

// newRefreshToken mints an opaque refresh token. The wire form is
// "<recordID>.<secret>"; only the hash of the secret is ever persisted.
func newRefreshToken() (raw, recordID, hash string, err error) {
	buf := make([]byte, refreshSecretBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", "", err
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)
	recordID = ids.New()
	return recordID + "." + secret, recordID, hashRefreshSecret(secret), nil
}

func splitRefreshToken(raw string) (recordID, secret string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("malformed refresh token")
	}
	return parts[0], parts[1], nil
}

func hashRefreshSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func refreshSecretMatches(storedHash, secret string) bool {
	actual := hashRefreshSecret(secret)
	if len(storedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(actual)) == 1
}
