package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"resumeforge/internal/api/middleware"
	"resumeforge/internal/builder"
	"resumeforge/internal/database"
	"resumeforge/internal/export"
	"resumeforge/internal/resume"
)

// ResumeHandler 负责处理与简历相关的 API 请求。
type ResumeHandler struct {
	resumes *builder.Service
	exports *export.Service
}

// NewResumeHandler 构造 ResumeHandler。exports 用于删除简历后清理归档，可为 nil。
func NewResumeHandler(resumes *builder.Service, exports *export.Service) *ResumeHandler {
	return &ResumeHandler{resumes: resumes, exports: exports}
}

type forkResumeRequest struct {
	Title string `json:"title"`
}

type resumeListItem struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type resumeResponse struct {
	ID       uint   `json:"id"`
	Title    string `json:"title"`
	IsMaster bool   `json:"is_master"`
	resume.Content
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newResumeResponse(r database.Resume, isMaster bool) resumeResponse {
	return resumeResponse{
		ID:        r.ID,
		Title:     r.Title,
		IsMaster:  isMaster,
		Content:   r.Content(),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// GetMaster 返回调用者的主简历。
func (h *ResumeHandler) GetMaster(c *gin.Context) {
	r, err := h.resumes.GetMaster(c.Request.Context(), identity(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newResumeResponse(*r, true))
}

// ListResumes 列出调用者的派生简历，不含主简历。
func (h *ResumeHandler) ListResumes(c *gin.Context) {
	resumes, err := h.resumes.List(c.Request.Context(), identity(c))
	if err != nil {
		RespondError(c, err)
		return
	}

	items := make([]resumeListItem, 0, len(resumes))
	for _, r := range resumes {
		items = append(items, resumeListItem{
			ID:        r.ID,
			Title:     r.Title,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"resumes": items})
}

// ForkResume 以主简历为模板创建一份新简历。
func (h *ResumeHandler) ForkResume(c *gin.Context) {
	var req forkResumeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, err.Error())
			return
		}
	}

	r, err := h.resumes.Fork(c.Request.Context(), identity(c), req.Title)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newResumeResponse(*r, false))
}

// GetResume 返回指定简历。
func (h *ResumeHandler) GetResume(c *gin.Context) {
	resumeID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	r, err := h.resumes.Get(ctx, identity(c), resumeID)
	if err != nil {
		RespondError(c, err)
		return
	}
	isMaster, err := h.resumes.IsMaster(ctx, identity(c), r.ID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newResumeResponse(*r, isMaster))
}

// PatchResume 部分更新简历，未出现的字段保持不变。
func (h *ResumeHandler) PatchResume(c *gin.Context) {
	resumeID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var patch resume.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	r, err := h.resumes.Patch(ctx, identity(c), resumeID, patch)
	if err != nil {
		RespondError(c, err)
		return
	}
	isMaster, err := h.resumes.IsMaster(ctx, identity(c), r.ID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newResumeResponse(*r, isMaster))
}

// DeleteResume 删除一份派生简历，并尽力清理其导出归档。
func (h *ResumeHandler) DeleteResume(c *gin.Context) {
	resumeID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.resumes.Delete(ctx, identity(c), resumeID); err != nil {
		RespondError(c, err)
		return
	}

	if h.exports != nil {
		if err := h.exports.Purge(ctx, resumeID); err != nil {
			middleware.LoggerFromContext(c).Warn("purge export archive failed", "resume_id", resumeID, "error", err)
		}
	}
	c.Status(http.StatusNoContent)
}
