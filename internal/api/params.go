package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"resumeforge/internal/api/middleware"
	"resumeforge/internal/auth"
)

// uintParam 解析路径参数；失败时直接写出 400。
func uintParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(v), true
}

func identity(c *gin.Context) *auth.Identity {
	return middleware.IdentityFromContext(c)
}
