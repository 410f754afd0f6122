// Package api exposes the translation runtime over HTTP: a REST surface for
// uploads, stores and task control, plus SSE and WebSocket streams of the
// per-task progress events.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/common/httpmw"
	"github.com/papertrans/papertrans/internal/common/logger"
	"github.com/papertrans/papertrans/internal/events/bus"
	"github.com/papertrans/papertrans/internal/glossary"
	"github.com/papertrans/papertrans/internal/paper"
	"github.com/papertrans/papertrans/internal/transtore"
	"github.com/papertrans/papertrans/internal/workflow"
)

// TaskService is the async task surface the handlers drive. Implemented by
// workflow.Service.
type TaskService interface {
	workflow.TaskDirectory
	Start(in workflow.RunInput) (string, error)
	Cancel(taskID string) bool
}

// Deps carries everything the HTTP surface serves.
type Deps struct {
	Tasks        TaskService
	Bus          bus.EventBus
	Glossaries   *glossary.Store
	Papers       paper.Repository
	Translations *transtore.Store
	Logger       *logger.Logger
}

// Server handles the REST and streaming endpoints.
type Server struct {
	tasks        TaskService
	bus          bus.EventBus
	glossaries   *glossary.Store
	papers       paper.Repository
	translations *transtore.Store
	logger       *logger.Logger

	// heartbeat is the silence window of the streaming endpoints.
	heartbeat time.Duration
}

// NewServer validates the dependency set and creates the handler collection.
func NewServer(deps Deps) (*Server, error) {
	if deps.Tasks == nil {
		return nil, errors.New("api server requires a task service")
	}
	if deps.Bus == nil {
		return nil, errors.New("api server requires an event bus")
	}
	if deps.Glossaries == nil {
		return nil, errors.New("api server requires a glossary store")
	}
	if deps.Papers == nil {
		return nil, errors.New("api server requires a paper repository")
	}
	if deps.Translations == nil {
		return nil, errors.New("api server requires a translation store")
	}
	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		tasks:        deps.Tasks,
		bus:          deps.Bus,
		glossaries:   deps.Glossaries,
		papers:       deps.Papers,
		translations: deps.Translations,
		logger:       log.WithFields(zap.String("component", "api")),
		heartbeat:    heartbeatInterval,
	}, nil
}

// Router builds the gin engine with the full middleware chain and all routes
// registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(httpmw.RequestLogger(s.logger, "api"))
	router.Use(httpmw.OtelTracing("papertrans-api"))
	s.RegisterRoutes(router)
	return router
}

// RegisterRoutes attaches every endpoint to the router.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", s.health)

	router.GET("/sse/translation/:task_id", s.streamSSE)
	router.GET("/ws/translation/:task_id", s.streamWS)

	api := router.Group("/api/v1")
	api.POST("/translations", s.startTranslation)
	api.GET("/translations", s.listTranslations)
	api.GET("/translations/:id", s.getTranslation)
	api.GET("/translations/:id/quality", s.getQualityReport)
	api.POST("/tasks/:task_id/cancel", s.cancelTask)

	api.GET("/glossaries", s.listGlossaryDomains)
	api.GET("/glossaries/:domain", s.getGlossaryDomain)
	api.PUT("/glossaries/:domain/entries", s.upsertGlossaryEntry)
	api.GET("/terminology/search", s.searchTerminology)

	api.GET("/papers", s.searchPapers)
	api.GET("/papers/:id", s.getPaper)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// corsMiddleware returns a CORS middleware for HTTP and WebSocket connections
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version, Sec-WebSocket-Protocol")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
