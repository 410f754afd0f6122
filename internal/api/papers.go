package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/paper"
)

const defaultPaperListLimit = 50

// searchPapers queries the paper index. Exactly one of q, domain or keyword
// selects the search mode; with none the newest papers are listed.
// GET /api/v1/papers?q=...&domain=...&keyword=...&limit=...
func (s *Server) searchPapers(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		papers []*paper.Metadata
		err    error
	)
	switch {
	case c.Query("q") != "":
		papers, err = s.papers.Search(ctx, c.Query("q"))
	case c.Query("domain") != "":
		papers, err = s.papers.SearchByDomain(ctx, c.Query("domain"))
	case c.Query("keyword") != "":
		papers, err = s.papers.SearchByKeyword(ctx, c.Query("keyword"))
	default:
		limit := defaultPaperListLimit
		if raw := c.Query("limit"); raw != "" {
			n, convErr := strconv.Atoi(raw)
			if convErr != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			limit = n
		}
		papers, err = s.papers.List(ctx, limit)
	}
	if err != nil {
		s.logger.Error("failed to search papers", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search papers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"papers": papers})
}

// getPaper returns the indexed metadata of one paper.
// GET /api/v1/papers/:id
func (s *Server) getPaper(c *gin.Context) {
	id := c.Param("id")
	meta, err := s.papers.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, paper.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "paper not found"})
			return
		}
		s.logger.Error("failed to get paper", zap.String("paper_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get paper"})
		return
	}
	c.JSON(http.StatusOK, meta)
}
