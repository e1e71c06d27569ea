package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/carelink/backend/internal/infrastructure/auth"
	"github.com/carelink/backend/internal/interfaces/http/dto"
)

// Auth context keys
const (
	IdentityKey   = "auth_identity"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// AuthConfig holds configuration for the authentication middleware
type AuthConfig struct {
	Verifier *auth.Verifier
	// SkipPaths are exact paths that never require a token
	SkipPaths []string
	// SkipPathPrefixes are path prefixes that never require a token
	SkipPathPrefixes []string
	// SkipPathSuffixes are path suffixes that never require a token. The
	// inbound partner webhook route authenticates by payload signature
	// instead and belongs here.
	SkipPathSuffixes []string
}

// Auth creates a bearer token authentication middleware
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if path == skip {
				c.Next()
				return
			}
		}
		for _, prefix := range cfg.SkipPathPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}
		for _, suffix := range cfg.SkipPathSuffixes {
			if strings.HasSuffix(path, suffix) {
				c.Next()
				return
			}
		}

		header := c.GetHeader(AuthHeaderKey)
		if header == "" {
			abortUnauthorized(c, dto.ErrCodeUnauthorized, "Missing authorization header")
			return
		}
		if !strings.HasPrefix(header, BearerPrefix) {
			abortUnauthorized(c, dto.ErrCodeUnauthorized, "Invalid authorization header format")
			return
		}

		token := strings.TrimPrefix(header, BearerPrefix)
		identity, err := cfg.Verifier.Verify(token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				abortUnauthorized(c, dto.ErrCodeTokenExpired, "Token has expired")
				return
			}
			abortUnauthorized(c, dto.ErrCodeUnauthorized, "Token validation failed")
			return
		}

		c.Set(IdentityKey, identity)
		c.Next()
	}
}

// GetIdentity returns the verified identity attached by the Auth middleware
func GetIdentity(c *gin.Context) *auth.Identity {
	if identity, ok := c.Get(IdentityKey); ok {
		if id, ok := identity.(*auth.Identity); ok {
			return id
		}
	}
	return nil
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized,
		dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}
