// Package auth resolves the principal of a request: a user proven by an
// OIDC bearer token, plus the anonymous session token carried in a cookie.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/judyrop/storefront/internal/domain"
)

const principalKey = "storefront.principal"

// Identity is what a verified token says about its bearer.
type Identity struct {
	Subject string
	Email   string
}

type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Identity, error)
}

type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the issuer and verifies ID tokens issued to clientID.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discovering OIDC provider %s: %w", issuer, err)
	}
	return NewOIDCVerifierFrom(provider.Verifier(&oidc.Config{ClientID: clientID})), nil
}

func NewOIDCVerifierFrom(v *oidc.IDTokenVerifier) *OIDCVerifier {
	return &OIDCVerifier{verifier: v}
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decoding token claims: %w", err)
	}
	return &Identity{Subject: token.Subject, Email: claims.Email}, nil
}

type CookieConfig struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// Middleware attaches the request principal to the context. A bearer token
// that fails verification aborts with 401; a missing session cookie gets a
// fresh token.
func Middleware(verifier TokenVerifier, cookie CookieConfig, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p domain.Principal

		if header := c.GetHeader("Authorization"); header != "" {
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
				return
			}
			identity, err := verifier.Verify(c.Request.Context(), strings.TrimPrefix(header, prefix))
			if err != nil {
				log.Warnf("Rejected bearer token from %s: %v", c.ClientIP(), err)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
				return
			}
			p.UserID = identity.Subject
			p.Email = identity.Email
		}

		token, err := c.Cookie(cookie.Name)
		if err != nil || !validToken(token) {
			token = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cookie.Name, token, int(cookie.TTL.Seconds()), "/", "", cookie.Secure, true)
		}
		p.SessionToken = token

		c.Set(principalKey, p)
		c.Next()
	}
}

func validToken(token string) bool {
	_, err := uuid.Parse(token)
	return err == nil
}

// RequireUser rejects anonymous principals.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Principal(c).Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": domain.ErrUnauthenticated.Error()})
			return
		}
		c.Next()
	}
}

func Principal(c *gin.Context) domain.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(domain.Principal); ok {
			return p
		}
	}
	return domain.Principal{}
}
