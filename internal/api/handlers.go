package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/infrawatchstack/infrawatch-insight/internal/models"
	"github.com/infrawatchstack/infrawatch-insight/internal/retrieval"
)

// ChatService is the chat/knowledge surface consumed by the handlers.
type ChatService interface {
	ProcessQuery(ctx context.Context, req models.AnalysisRequest) models.AnalysisResult
	AddDocument(ctx context.Context, content string, metadata map[string]any) (string, error)
	SearchKnowledge(ctx context.Context, query string, k int, filter map[string]any) ([]retrieval.SearchResult, error)
	KnowledgeStats() retrieval.Stats
	RefreshKnowledgeBase(ctx context.Context) (int, error)
	AutomaticInsights(ctx context.Context) ([]models.AIInsight, error)
}

// PredictiveAPI is the predictive surface consumed by the handlers.
type PredictiveAPI interface {
	Analyze(ctx context.Context, req models.PredictiveRequest) (models.PredictiveResponse, error)
	CurrentAlerts(ctx context.Context) ([]models.PredictiveAlert, error)
	MetricTrends(ctx context.Context, window string) ([]models.MetricTrend, error)
	DefaultConfig() models.PredictiveConfig
}

// Handlers binds the service layer to HTTP routes.
type Handlers struct {
	logger     *slog.Logger
	chat       ChatService
	predictive PredictiveAPI
}

// NewHandlers wires the route handlers.
func NewHandlers(logger *slog.Logger, chat ChatService, predictive PredictiveAPI) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{logger: logger, chat: chat, predictive: predictive}
}

// Register attaches all routes to the engine.
func (h *Handlers) Register(engine *gin.Engine) {
	engine.GET("/healthz", h.health)

	api := engine.Group("/api")
	{
		api.POST("/chat/query", h.chatQuery)
		api.GET("/insights/automatic", h.automaticInsights)

		predictive := api.Group("/predictive")
		{
			predictive.POST("/analyze", h.predictiveAnalyze)
			predictive.GET("/alerts", h.predictiveAlerts)
			predictive.GET("/trends", h.predictiveTrends)
			predictive.GET("/config", h.predictiveConfig)
		}

		knowledge := api.Group("/knowledge")
		{
			knowledge.POST("/documents", h.addDocument)
			knowledge.POST("/refresh", h.refreshKnowledge)
			knowledge.GET("/search", h.searchKnowledge)
			knowledge.GET("/stats", h.knowledgeStats)
		}
	}
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type chatQueryRequest struct {
	Query           string               `json:"query" binding:"required"`
	History         []models.ChatMessage `json:"history"`
	IncludeLiveData bool                 `json:"include_live_data"`
}

// chatQuery always answers 200: generation failures surface as a degraded
// result body, not a transport error.
func (h *Handlers) chatQuery(c *gin.Context) {
	var req chatQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.chat.ProcessQuery(c.Request.Context(), models.AnalysisRequest{
		Query:           req.Query,
		History:         req.History,
		IncludeLiveData: req.IncludeLiveData,
	})
	c.JSON(http.StatusOK, result)
}

func (h *Handlers) automaticInsights(c *gin.Context) {
	insights, err := h.chat.AutomaticInsights(c.Request.Context())
	if err != nil {
		h.logger.Error("automatic insights failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "infrastructure data unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"insights": insights})
}

func (h *Handlers) predictiveAnalyze(c *gin.Context) {
	req := models.PredictiveRequest{Config: models.DefaultPredictiveConfig()}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	response, err := h.predictive.Analyze(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("predictive analysis failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *Handlers) predictiveAlerts(c *gin.Context) {
	alerts, err := h.predictive.CurrentAlerts(c.Request.Context())
	if err != nil {
		h.logger.Error("alert listing failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "alert listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func (h *Handlers) predictiveTrends(c *gin.Context) {
	trends, err := h.predictive.MetricTrends(c.Request.Context(), c.Query("window"))
	if err != nil {
		h.logger.Error("trend computation failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "metric history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trends": trends, "count": len(trends)})
}

func (h *Handlers) predictiveConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.predictive.DefaultConfig())
}

type addDocumentRequest struct {
	Content  string         `json:"content" binding:"required"`
	Metadata map[string]any `json:"metadata"`
}

func (h *Handlers) addDocument(c *gin.Context) {
	var req addDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.chat.AddDocument(c.Request.Context(), req.Content, req.Metadata)
	if err != nil {
		h.logger.Error("add document failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "document not stored"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *Handlers) refreshKnowledge(c *gin.Context) {
	added, err := h.chat.RefreshKnowledgeBase(c.Request.Context())
	if err != nil {
		h.logger.Error("knowledge refresh failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "infrastructure data unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents_added": added})
}

func (h *Handlers) searchKnowledge(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	k := 3
	if v := c.Query("k"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid k"})
			return
		}
		k = parsed
	}
	var filter map[string]any
	if docType := c.Query("type"); docType != "" {
		filter = map[string]any{"type": docType}
	}

	results, err := h.chat.SearchKnowledge(c.Request.Context(), query, k, filter)
	if err != nil {
		h.logger.Error("knowledge search failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

func (h *Handlers) knowledgeStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.chat.KnowledgeStats())
}
