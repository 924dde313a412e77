package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"resumeforge/internal/api/middleware"
	"resumeforge/internal/database"
	"resumeforge/internal/resume"
	"resumeforge/internal/suggestion"
)

// SuggestionHandler 处理 AI 建议的请求、查询与状态修改。
type SuggestionHandler struct {
	engine *suggestion.Engine
}

func NewSuggestionHandler(engine *suggestion.Engine) *SuggestionHandler {
	return &SuggestionHandler{engine: engine}
}

type requestSuggestionRequest struct {
	JobDescription string `json:"job_description"`
}

type setStatusRequest struct {
	Status resume.Status   `json:"status" binding:"required"`
	Type   resume.Category `json:"type"`
}

type suggestionResponse struct {
	ID                   uint                    `json:"id"`
	ResumeID             uint                    `json:"resume_id"`
	JobDescription       string                  `json:"job_description"`
	Recommendations      []resume.Recommendation `json:"recommendations"`
	Generation           uint64                  `json:"generation"`
	ReconciledGeneration uint64                  `json:"reconciled_generation"`
	Pending              bool                    `json:"pending"`
	UpdatedAt            time.Time               `json:"updated_at"`
}

func newSuggestionResponse(s *database.Suggestion) *suggestionResponse {
	if s == nil {
		return nil
	}
	recs := []resume.Recommendation(s.Recommendations)
	if recs == nil {
		recs = []resume.Recommendation{}
	}
	return &suggestionResponse{
		ID:                   s.ID,
		ResumeID:             s.ResumeID,
		JobDescription:       s.JobDescription,
		Recommendations:      recs,
		Generation:           s.Generation,
		ReconciledGeneration: s.ReconciledGeneration,
		Pending:              s.Pending(),
		UpdatedAt:            s.UpdatedAt,
	}
}

// RequestSuggestion 受理一次生成请求，立即返回 202，结果通过 WebSocket 通知或轮询获取。
func (h *SuggestionHandler) RequestSuggestion(c *gin.Context) {
	resumeID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req requestSuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ticket, err := h.engine.Request(c.Request.Context(), identity(c), resumeID, req.JobDescription, middleware.GetCorrelationID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ticket)
}

// GetSuggestion 返回简历当前的建议；尚未请求过时 suggestion 为 null。
func (h *SuggestionHandler) GetSuggestion(c *gin.Context) {
	resumeID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	sug, err := h.engine.Get(c.Request.Context(), identity(c), resumeID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestion": newSuggestionResponse(sug)})
}

// SetRecommendationStatus 接受或拒绝单条建议。
func (h *SuggestionHandler) SetRecommendationStatus(c *gin.Context) {
	resumeID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		BadRequest(c, "invalid index")
		return
	}

	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	sug, err := h.engine.SetStatus(c.Request.Context(), identity(c), resumeID, index, req.Type, req.Status)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestion": newSuggestionResponse(sug)})
}
