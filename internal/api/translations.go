package api

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/transtore"
	"github.com/papertrans/papertrans/internal/workflow"
)

// startTranslation accepts a multipart PDF upload and launches an async
// translation task.
// POST /api/v1/translations
func (s *Server) startTranslation(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only PDF uploads are supported"})
		return
	}

	file, err := header.Open()
	if err != nil {
		s.logger.Error("failed to open upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		s.logger.Error("failed to read upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	if len(content) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uploaded file is empty"})
		return
	}

	enableOCR := false
	switch strings.ToLower(c.PostForm("enable_ocr")) {
	case "1", "true", "yes", "on":
		enableOCR = true
	}

	taskID, err := s.tasks.Start(workflow.RunInput{
		FileContent: content,
		Filename:    filepath.Base(header.Filename),
		EnableOCR:   enableOCR,
	})
	if err != nil {
		if errors.Is(err, workflow.ErrServiceClosed) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
			return
		}
		s.logger.Error("failed to start translation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start translation"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id":    taskID,
		"filename":   filepath.Base(header.Filename),
		"enable_ocr": enableOCR,
	})
}

// listTranslations returns the stored translations, newest first.
// GET /api/v1/translations
func (s *Server) listTranslations(c *gin.Context) {
	metas, err := s.translations.List()
	if err != nil {
		s.logger.Error("failed to list translations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list translations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"translations": metas})
}

// getTranslation returns one stored translation with its document.
// GET /api/v1/translations/:id
func (s *Server) getTranslation(c *gin.Context) {
	id := c.Param("id")
	meta, err := s.translations.Get(id)
	if err != nil {
		if errors.Is(err, transtore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "translation not found"})
			return
		}
		s.logger.Error("failed to get translation", zap.String("translation_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get translation"})
		return
	}

	markdown, err := s.translations.ReadMarkdown(id)
	if err != nil {
		s.logger.Error("failed to read translated markdown", zap.String("translation_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get translation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"meta": meta, "markdown": markdown})
}

// getQualityReport returns the stored quality report of one translation.
// GET /api/v1/translations/:id/quality
func (s *Server) getQualityReport(c *gin.Context) {
	id := c.Param("id")
	report, err := s.translations.ReadQualityReport(id)
	if err != nil {
		if errors.Is(err, transtore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "quality report not found"})
			return
		}
		s.logger.Error("failed to read quality report", zap.String("translation_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get quality report"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// cancelTask flips the cancellation token of a running task.
// POST /api/v1/tasks/:task_id/cancel
func (s *Server) cancelTask(c *gin.Context) {
	taskID := c.Param("task_id")
	if !s.tasks.Cancel(taskID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task is not running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": taskID, "cancelled": true})
}
