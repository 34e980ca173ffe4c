package auth

import (
	"context"

	"github.com/factuurly/factuurly/internal/config"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/golang-jwt/jwt/v4"
)

// Claims carries the authenticated caller identity extracted from a token
type Claims struct {
	UserID   string
	TenantID string
}

// Provider validates bearer tokens signed with the configured secret
type Provider struct {
	secret []byte
}

func NewProvider(cfg *config.Configuration) *Provider {
	return &Provider{secret: []byte(cfg.Auth.Secret)}
}

// ValidateToken parses and validates a JWT and returns its claims
func (p *Provider) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	if len(p.secret) == 0 {
		return nil, ierr.NewError("auth secret not configured").
			WithHint("Token authentication is not available").
			Mark(ierr.ErrConfiguration)
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ierr.NewError("unexpected signing method").
				Mark(ierr.ErrPermissionDenied)
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ierr.WithError(err).
			WithHint("Invalid token").
			Mark(ierr.ErrPermissionDenied)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ierr.NewError("invalid token claims").
			WithHint("Invalid token").
			Mark(ierr.ErrPermissionDenied)
	}

	userID, _ := claims["user_id"].(string)
	tenantID, _ := claims["tenant_id"].(string)
	return &Claims{UserID: userID, TenantID: tenantID}, nil
}

// ValidateAPIKey resolves a raw API key to its tenant and user identity
func ValidateAPIKey(cfg *config.Configuration, apiKey string) (tenantID, userID string, valid bool) {
	identity, ok := cfg.Auth.APIKey.Keys[apiKey]
	if !ok {
		return "", "", false
	}
	return identity.TenantID, identity.UserID, true
}
