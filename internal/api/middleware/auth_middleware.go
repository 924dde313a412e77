package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"resumeforge/internal/auth"
	"resumeforge/internal/errcode"
)

const identityKey = "identity"

func abortUnauthenticated(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": "unauthenticated",
		"code":  errcode.Unauthenticated,
	})
}

// IdentityMiddleware 校验身份提供方签发的令牌，并将 Identity 注入上下文。
func IdentityMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthenticated(c)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthenticated(c)
			return
		}

		id, err := authService.ValidateToken(parts[1])
		if err != nil {
			LoggerFromContext(c).Info("token rejected", "error", err)
			abortUnauthenticated(c)
			return
		}

		c.Set(identityKey, &id)
		c.Next()
	}
}

// IdentityFromContext 返回当前请求的调用者身份。
func IdentityFromContext(c *gin.Context) *auth.Identity {
	if value, ok := c.Get(identityKey); ok {
		if id, ok := value.(*auth.Identity); ok {
			return id
		}
	}
	return nil
}
