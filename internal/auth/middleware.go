package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nova_arena/internal/ledger"
)

const (
	CookieName  = "arena_token"
	identityKey = "identity"
)

// Auth extracts the session token from the cookie or the Authorization
// header and deposits the verified Identity into the gin context.
func (s *Service) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := c.Cookie(CookieName)
		if err != nil || tokenStr == "" {
			header := c.GetHeader("Authorization")
			tokenStr = strings.TrimPrefix(header, "Bearer ")
		}
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
			return
		}

		ident, err := s.ParseToken(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad token"})
			return
		}

		c.Set(identityKey, *ident)
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentIdentity(c).Role != ledger.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		c.Next()
	}
}

func CurrentIdentity(c *gin.Context) Identity {
	v, _ := c.Get(identityKey)
	ident, _ := v.(Identity)
	return ident
}
