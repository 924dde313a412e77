package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"resumeforge/internal/export"
)

// ExportHandler 提供简历 PDF 下载。
type ExportHandler struct {
	exports *export.Service
}

func NewExportHandler(exports *export.Service) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// DownloadResume 同步渲染并以附件形式返回 PDF。
func (h *ExportHandler) DownloadResume(c *gin.Context) {
	resumeID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	doc, err := h.exports.Export(c.Request.Context(), identity(c), resumeID)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	c.Data(http.StatusOK, "application/pdf", doc.Data)
}

// GetDownloadLink 返回最近一次导出的预签名下载链接。
func (h *ExportHandler) GetDownloadLink(c *gin.Context) {
	resumeID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	url, err := h.exports.Link(c.Request.Context(), identity(c), resumeID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
