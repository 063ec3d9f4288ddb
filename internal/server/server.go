// Package server exposes the pricing service over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"pricecomp/internal/pipeline"
	"pricecomp/internal/pricing"
	"pricecomp/internal/settings"
	"pricecomp/internal/storage"
)

// requestTimeout bounds one pricing request end to end: the SerpApi fetch
// plus the LLM analysis must finish within it.
const requestTimeout = 70 * time.Second

const defaultHistoryLimit = 50

// Pricer runs one pricing request.
type Pricer interface {
	Run(ctx context.Context, q pricing.Query, cfg settings.Settings) (*pricing.Analysis, error)
}

// Server wires the HTTP routes to the pipeline and the store.
type Server struct {
	pricer Pricer
	store  storage.Store
	engine *gin.Engine
}

func New(pricer Pricer, store storage.Store) *Server {
	s := &Server{
		pricer: pricer,
		store:  store,
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.engine.Use(corsMiddleware())
	s.routes()
	return s
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) routes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api")
	{
		api.POST("/price", s.handlePrice)
		api.GET("/settings", s.handleGetSettings)
		api.POST("/settings", s.handleUpdateSettings)
		api.GET("/history", s.handleHistory)
	}
}

// Handler returns the root HTTP handler, usable with any http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves HTTP on addr until the listener fails or ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info().Str("addr", addr).Msg("http server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type priceRequest struct {
	Query        string `json:"query"`
	Type         string `json:"type"`
	ForceRefresh bool   `json:"forceRefresh"`
}

func (s *Server) handlePrice(c *gin.Context) {
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Query == "" || req.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: query and type"})
		return
	}
	productType, err := pricing.ParseProductType(req.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := s.loadSettings()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}

	q := pricing.Query{
		Text:         req.Query,
		ProductType:  productType,
		Region:       cfg.Region,
		ForceRefresh: req.ForceRefresh,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	analysis, err := s.pricer.Run(ctx, q, cfg)
	if err != nil {
		s.writePriceError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (s *Server) writePriceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNotConfigured), errors.Is(err, pipeline.ErrNoListings):
		// Sentinel messages are written for end users, pass them through.
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":     "The analysis took too long to complete. Please try again.",
			"retryable": true,
		})
	default:
		log.Error().Err(err).Msg("pricing request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// loadSettings returns the stored settings, creating the defaults row on
// first access.
func (s *Server) loadSettings() (settings.Settings, error) {
	stored, err := s.store.GetSettings()
	if err != nil {
		return settings.Settings{}, err
	}
	if stored != nil {
		return *stored, nil
	}
	cfg := settings.Defaults()
	if err := s.store.SaveSettings(cfg); err != nil {
		return settings.Settings{}, err
	}
	return cfg, nil
}

func (s *Server) handleGetSettings(c *gin.Context) {
	cfg, err := s.loadSettings()
	if err != nil {
		log.Error().Err(err).Msg("failed to load settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, cfg.Masked())
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	var update settings.Settings
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	current, err := s.loadSettings()
	if err != nil {
		log.Error().Err(err).Msg("failed to load settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}

	merged := settings.Merge(current, update)
	if err := merged.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.SaveSettings(merged); err != nil {
		log.Error().Err(err).Msg("failed to save settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save settings"})
		return
	}
	c.JSON(http.StatusOK, merged.Masked())
}

type historyEntry struct {
	SearchType      string           `json:"search_type"`
	SearchQuery     string           `json:"search_query"`
	MedianPrice     float64          `json:"median_price"`
	Currency        pricing.Currency `json:"currency"`
	CompsUsed       int              `json:"comps_used"`
	CompsExcluded   int              `json:"comps_excluded"`
	ConfidenceScore int              `json:"confidence_score"`
	CreatedAt       time.Time        `json:"created_at"`
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	records, err := s.store.ListHistory(limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}

	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, historyEntry{
			SearchType:      rec.SearchType,
			SearchQuery:     rec.SearchQuery,
			MedianPrice:     rec.MedianPrice,
			Currency:        rec.Currency,
			CompsUsed:       rec.CompsUsed,
			CompsExcluded:   rec.CompsExcluded,
			ConfidenceScore: rec.ConfidenceScore,
			CreatedAt:       rec.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}
