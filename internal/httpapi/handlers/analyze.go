package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/finsight/platform/internal/analysis"
	"github.com/finsight/platform/internal/common"
	"github.com/gin-gonic/gin"
)

func allowedUploadExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".txt":
		return true
	}
	return false
}

// AnalyzeDocument accepts a multipart upload (file + query), stores the file
// under the upload dir and submits an analysis job.
func (h *Handler) AnalyzeDocument(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		failUnauthorized(c)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "file is required")
		return
	}
	query := strings.TrimSpace(c.PostForm("query"))
	if query == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "query is required")
		return
	}

	if fileHeader.Size <= 0 || fileHeader.Size > h.Cfg.MaxUploadBytes {
		common.Fail(c, http.StatusBadRequest, 10003, "file size out of range")
		return
	}
	if !allowedUploadExt(fileHeader.Filename) {
		common.Fail(c, http.StatusBadRequest, 10004, "only .pdf and .txt files are accepted")
		return
	}

	if err := os.MkdirAll(h.Cfg.UploadDir, 0o755); err != nil {
		log.Printf("[AnalyzeDocument] mkdir failed dir=%s err=%v", h.Cfg.UploadDir, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	fileID, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	dst := filepath.Join(h.Cfg.UploadDir,
		fmt.Sprintf("financial_document_%s%s", fileID, strings.ToLower(filepath.Ext(fileHeader.Filename))))

	if err := c.SaveUploadedFile(fileHeader, dst); err != nil {
		log.Printf("[AnalyzeDocument] save failed dst=%s err=%v", dst, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	jobID, err := h.Svc.Submit(c.Request.Context(), analysis.SubmitInput{
		UserID:       uid,
		FilePath:     dst,
		OriginalName: fileHeader.Filename,
		SizeBytes:    fileHeader.Size,
		ContentType:  fileHeader.Header.Get("Content-Type"),
		Query:        query,
	})
	if err != nil {
		if errors.Is(err, analysis.ErrInvalidInput) {
			common.Fail(c, http.StatusBadRequest, 10005, err.Error())
			return
		}
		log.Printf("[AnalyzeDocument] submit failed uid=%d err=%v", uid, err)
		common.Fail(c, http.StatusInternalServerError, 50002, "submit failed")
		return
	}

	common.OK(c, gin.H{"job_id": jobID})
}
