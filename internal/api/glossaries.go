package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/glossary"
)

// listGlossaryDomains returns the stored glossary domains.
// GET /api/v1/glossaries
func (s *Server) listGlossaryDomains(c *gin.Context) {
	domains, err := s.glossaries.Domains()
	if err != nil {
		s.logger.Error("failed to list glossary domains", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list glossary domains"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"domains": domains})
}

// getGlossaryDomain returns every entry of one domain.
// GET /api/v1/glossaries/:domain
func (s *Server) getGlossaryDomain(c *gin.Context) {
	domain := glossary.NormalizeDomain(c.Param("domain"))
	entries, err := s.glossaries.Load(domain)
	if err != nil {
		s.logger.Error("failed to load glossary", zap.String("domain", domain), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load glossary"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"domain": domain, "entries": entries})
}

type upsertEntryRequest struct {
	English     string `json:"english"`
	Chinese     string `json:"chinese"`
	KeepEnglish bool   `json:"keep_english"`
}

// upsertGlossaryEntry writes one manual entry into a domain glossary.
// PUT /api/v1/glossaries/:domain/entries
func (s *Server) upsertGlossaryEntry(c *gin.Context) {
	var body upsertEntryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(body.English) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "field 'english' is required"})
		return
	}

	domain := glossary.NormalizeDomain(c.Param("domain"))
	entry := glossary.Entry{
		English:     body.English,
		Chinese:     body.Chinese,
		KeepEnglish: body.KeepEnglish,
		Source:      glossary.SourceManual,
	}
	if err := s.glossaries.Upsert(domain, entry); err != nil {
		s.logger.Error("failed to upsert glossary entry",
			zap.String("domain", domain),
			zap.String("english", body.English),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upsert glossary entry"})
		return
	}
	c.Status(http.StatusNoContent)
}

// searchTerminology searches entries across domains.
// GET /api/v1/terminology/search?q=...&domain=...
func (s *Server) searchTerminology(c *gin.Context) {
	query := c.Query("q")
	domain := c.Query("domain")
	entries, err := s.glossaries.Search(query, domain)
	if err != nil {
		s.logger.Error("failed to search terminology", zap.String("query", query), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search terminology"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
