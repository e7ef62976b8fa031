package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
	"github.com/AcelinoMargotti/scinexa-project-nexus/pkg/logger"
)

// Middleware rejects requests without a valid bearer token and stores the actor on the request context.
func Middleware(tokens *Tokens, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := ExtractToken(c.Request)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrMissingToken.Error(), "code": "unauthenticated"})
			return
		}

		actor, err := tokens.Parse(raw)
		if err != nil {
			logger.WithTrace(c.Request.Context(), log).Warn("Rejected token",
				zap.String("client_ip", c.ClientIP()),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrInvalidToken.Error(), "code": "unauthenticated"})
			return
		}

		c.Request = c.Request.WithContext(WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// RequireRole must run after Middleware; it rejects actors whose global role differs from role.
func RequireRole(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthenticated.Error(), "code": "unauthenticated"})
			return
		}
		if actor.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "requires role " + string(role), "code": "forbidden"})
			return
		}
		c.Next()
	}
}
