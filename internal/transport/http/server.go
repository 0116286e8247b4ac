// Package http serves a small read-only status API over gin.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"marlin/internal/logger"
	"marlin/internal/market"
	"marlin/internal/store"
)

// Server exposes account, position and decision state for dashboards.
type Server struct {
	market *market.Service
	store  *store.Store
	srv    *http.Server
}

func NewServer(addr string, m *market.Service, st *store.Store) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{market: m, store: st}
	r.GET("/healthz", s.health)
	api := r.Group("/api")
	{
		api.GET("/account", s.account)
		api.GET("/positions", s.positions)
		api.GET("/decisions", s.decisions)
	}
	s.srv = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		logger.Infof("[http] listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("[http] serve: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) account(c *gin.Context) {
	acct, err := s.market.AccountSummary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account_value":     acct.AccountValue,
		"total_margin_used": acct.TotalMarginUsed,
		"free_margin":       acct.FreeMargin(),
		"open_positions":    len(acct.Positions),
	})
}

func (s *Server) positions(c *gin.Context) {
	details, err := s.market.EnrichedPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, details)
}

func (s *Server) decisions(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, []store.DecisionRecord{})
		return
	}
	recs, err := s.store.Recent(100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, recs)
}
