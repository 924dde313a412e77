package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"resumeforge/internal/account"
	"resumeforge/internal/api/middleware"
	"resumeforge/internal/auth"
	"resumeforge/internal/builder"
	"resumeforge/internal/export"
	"resumeforge/internal/suggestion"
)

// Dependencies 汇总路由需要的服务。
type Dependencies struct {
	Auth           *auth.AuthService
	Guard          *account.Guard
	Accounts       *account.Service
	Resumes        *builder.Service
	Suggestions    *suggestion.Engine
	Exports        *export.Service
	Redis          redis.UniversalClient
	AllowedOrigins []string
	Logger         *slog.Logger
}

// RegisterRoutes 注册 /v1 下的全部路由。除 /v1/ws 自行鉴权外均要求身份令牌。
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	accountHandler := NewAccountHandler(deps.Accounts)
	resumeHandler := NewResumeHandler(deps.Resumes, deps.Exports)
	suggestionHandler := NewSuggestionHandler(deps.Suggestions)
	exportHandler := NewExportHandler(deps.Exports)
	identityMiddleware := middleware.IdentityMiddleware(deps.Auth)

	v1 := router.Group("/v1")
	{
		if deps.Redis != nil {
			wsHandler := NewWsHandler(deps.Redis, deps.Auth, deps.Guard, deps.Logger, deps.AllowedOrigins)
			v1.GET("/ws", wsHandler.HandleConnection)
		}

		authed := v1.Group("")
		authed.Use(identityMiddleware)

		authed.POST("/onboarding", accountHandler.Onboard)
		authed.GET("/me", accountHandler.Me)

		resumeGroup := authed.Group("/resumes")
		{
			resumeGroup.GET("/master", resumeHandler.GetMaster)
			resumeGroup.GET("", resumeHandler.ListResumes)
			resumeGroup.POST("", resumeHandler.ForkResume)
			resumeGroup.GET("/:id", resumeHandler.GetResume)
			resumeGroup.PATCH("/:id", resumeHandler.PatchResume)
			resumeGroup.DELETE("/:id", resumeHandler.DeleteResume)

			resumeGroup.POST("/:id/suggestion", suggestionHandler.RequestSuggestion)
			resumeGroup.GET("/:id/suggestion", suggestionHandler.GetSuggestion)
			resumeGroup.PATCH("/:id/suggestion/recommendations/:index", suggestionHandler.SetRecommendationStatus)
		}

		exportGroup := authed.Group("/export")
		{
			exportGroup.GET("/resume/:id", exportHandler.DownloadResume)
			exportGroup.GET("/resume/:id/link", exportHandler.GetDownloadLink)
		}
	}
}
