package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/factuurly/factuurly/internal/auth"
	"github.com/factuurly/factuurly/internal/config"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/gin-gonic/gin"
)

const headerAuthorization = "Authorization"

// AuthenticateMiddleware authenticates requests based on either:
// 1. API key in the configured header
// 2. JWT token in the Authorization header as a Bearer token
// It sets the user ID and tenant ID in the request context for downstream
// handlers. The webhook endpoint does not use this middleware; webhooks are
// authenticated by signature instead.
func AuthenticateMiddleware(cfg *config.Configuration, logger *logger.Logger) gin.HandlerFunc {
	authProvider := auth.NewProvider(cfg)

	return func(c *gin.Context) {
		apiKeyHeader := c.GetHeader(cfg.Auth.APIKey.Header)
		if apiKeyHeader != "" {
			tenantID, userID, valid := auth.ValidateAPIKey(cfg, apiKeyHeader)
			if !valid || tenantID == "" || userID == "" {
				logger.Debugw("invalid api key")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
				c.Abort()
				return
			}

			ctx := c.Request.Context()
			ctx = context.WithValue(ctx, types.CtxTenantID, tenantID)
			ctx = context.WithValue(ctx, types.CtxUserID, userID)
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		authHeader := c.GetHeader(headerAuthorization)
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := authProvider.ValidateToken(c.Request.Context(), tokenString)
		if err != nil {
			logger.Errorw("failed to validate token", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		if claims == nil || claims.UserID == "" || claims.TenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		ctx = context.WithValue(ctx, types.CtxUserID, claims.UserID)
		ctx = context.WithValue(ctx, types.CtxTenantID, claims.TenantID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
