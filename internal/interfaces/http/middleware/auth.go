package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/saasbooks/backend/internal/infrastructure/auth"
	"github.com/saasbooks/backend/internal/interfaces/http/dto"
)

const principalKey = "principal"

// Authenticate resolves the bearer token into the request principal.
// Requests without a valid token never reach the handler.
func Authenticate(resolver *auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := resolver.Resolve(c.Request.Context(), bearerToken(c), auth.RequestMeta{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		if err != nil {
			dto.Error(c, err)
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// GetPrincipal returns the authenticated principal, or nil on
// unauthenticated routes.
func GetPrincipal(c *gin.Context) *auth.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(*auth.Principal); ok {
			return p
		}
	}
	return nil
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}
