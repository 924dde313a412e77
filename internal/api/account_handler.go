package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"resumeforge/internal/account"
	"resumeforge/internal/resume"
)

// AccountHandler 处理 onboarding 与当前用户查询。
type AccountHandler struct {
	accounts *account.Service
}

func NewAccountHandler(accounts *account.Service) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type meResponse struct {
	ID             uint      `json:"id"`
	Subject        string    `json:"subject"`
	Email          string    `json:"email"`
	MasterResumeID *uint     `json:"master_resume_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Onboard 为首次登录的调用者创建账号和主简历。请求体为简历内容。
func (h *AccountHandler) Onboard(c *gin.Context) {
	var content resume.Content
	if err := c.ShouldBindJSON(&content); err != nil {
		BadRequest(c, err.Error())
		return
	}

	user, master, err := h.accounts.Onboard(c.Request.Context(), identity(c), content)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user": meResponse{
			ID:             user.ID,
			Subject:        user.Subject,
			Email:          user.Email,
			MasterResumeID: user.MasterResumeID,
			CreatedAt:      user.CreatedAt,
		},
		"master_resume": newResumeResponse(*master, true),
	})
}

// Me 返回当前用户；未 onboarding 时返回 401。
func (h *AccountHandler) Me(c *gin.Context) {
	user, err := h.accounts.Me(c.Request.Context(), identity(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, meResponse{
		ID:             user.ID,
		Subject:        user.Subject,
		Email:          user.Email,
		MasterResumeID: user.MasterResumeID,
		CreatedAt:      user.CreatedAt,
	})
}
