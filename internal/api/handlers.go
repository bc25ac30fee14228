package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	}
	if s.cacheStats != nil {
		resp["cache"] = s.cacheStats()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := gin.H{
		"engine":     s.engine.GetStatus(),
		"ws_clients": s.hub.GetClientCount(),
	}
	if s.cacheStats != nil {
		resp["cache"] = s.cacheStats()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSignals(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	c.JSON(http.StatusOK, gin.H{"signals": s.engine.RecentProposals(limit)})
}

func (s *Server) handleBias(c *gin.Context) {
	symbol := c.Param("symbol")
	assessment, ok := s.engine.Assessment(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no assessment for symbol", "symbol": symbol})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":         assessment.Symbol,
		"bias":           assessment.Bias,
		"tier":           assessment.BiasTier,
		"timeframe_bias": assessment.TrendByHorizon(),
		"at":             assessment.At,
	})
}

func (s *Server) handleFindings(c *gin.Context) {
	symbol := c.Param("symbol")
	assessment, ok := s.engine.Assessment(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no assessment for symbol", "symbol": symbol})
		return
	}
	c.JSON(http.StatusOK, assessment)
}
