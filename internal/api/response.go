package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"resumeforge/internal/api/middleware"
	"resumeforge/internal/errcode"
)

func Error(c *gin.Context, status int, code errcode.Code, msg string) {
	c.JSON(status, gin.H{"error": msg, "code": code})
}

func BadRequest(c *gin.Context, msg string) {
	Error(c, http.StatusBadRequest, errcode.Invalid, msg)
}

// StatusOf 将错误分类映射为 HTTP 状态码。
func StatusOf(code errcode.Code) int {
	switch code {
	case errcode.Unauthenticated:
		return http.StatusUnauthorized
	case errcode.Unauthorized:
		return http.StatusForbidden
	case errcode.NotFound:
		return http.StatusNotFound
	case errcode.UserAlreadyExists:
		return http.StatusConflict
	case errcode.Invalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// RespondError 按错误分类写出响应。未分类的错误只返回通用信息，细节写入日志。
func RespondError(c *gin.Context, err error) {
	code := errcode.CodeOf(err)
	status := StatusOf(code)
	if status >= http.StatusInternalServerError {
		middleware.LoggerFromContext(c).Error("request error", "error", err)
		_ = c.Error(err)
	}
	Error(c, status, code, errcode.MessageOf(err))
}
