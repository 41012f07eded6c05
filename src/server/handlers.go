package server

import (
	"net/http"
	"strings"

	"market-relay/src/helpers"
	"market-relay/src/models"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// Control API
// -----------------------------------------------------------------------------

func (s *Server) postSubscribe(c *gin.Context) {
	var req models.MSubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, helpers.NewValidationError("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.ClientID) == "" {
		writeError(c, helpers.NewValidationError("clientId is required"))
		return
	}

	subscribed, err := s.relay.Subscribe(req.ClientID, req.Symbols, req.Market)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.MSubscribeResponse{Subscribed: subscribed})
}

// -----------------------------------------------------------------------------

func (s *Server) postUnsubscribe(c *gin.Context) {
	var req models.MSubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, helpers.NewValidationError("invalid request body: %v", err))
		return
	}

	c.JSON(http.StatusOK, models.MUnsubscribeResponse{
		Unsubscribed: s.relay.Unsubscribe(req.ClientID, req.Symbols),
	})
}

// -----------------------------------------------------------------------------
// Reference Data
// -----------------------------------------------------------------------------

func (s *Server) getTickers(c *gin.Context) {
	market, err := models.ParseMarket(c.DefaultQuery("market", string(models.MarketStocks)))
	if err != nil {
		writeError(c, helpers.NewValidationError("%v", err))
		return
	}
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		writeError(c, err)
		return
	}
	if s.reference == nil {
		c.JSON(http.StatusServiceUnavailable, models.MErrorResponse{Error: "reference data unavailable"})
		return
	}

	tickers, err := s.reference.ListTickers(c.Request.Context(), models.MTickerQuery{
		Market: market,
		Search: strings.TrimSpace(c.Query("search")),
		Limit:  limit,
	})
	if err != nil {
		s.Logger.Warning("Ticker lookup failed: %v", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tickers)
}

// -----------------------------------------------------------------------------

func (s *Server) getOptionsContracts(c *gin.Context) {
	underlying := strings.ToUpper(strings.TrimSpace(c.Query("underlying")))
	if underlying == "" {
		writeError(c, helpers.NewValidationError("underlying is required"))
		return
	}
	from, to := c.Query("exp_from"), c.Query("exp_to")
	if err := validateDateRange(from, to); err != nil {
		writeError(c, err)
		return
	}
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		writeError(c, err)
		return
	}
	if s.reference == nil {
		c.JSON(http.StatusServiceUnavailable, models.MErrorResponse{Error: "reference data unavailable"})
		return
	}

	contracts, err := s.reference.ListOptionsContracts(c.Request.Context(), models.MContractsQuery{
		Underlying: underlying,
		ExpFrom:    from,
		ExpTo:      to,
		Limit:      limit,
	})
	if err != nil {
		s.Logger.Warning("Options contracts lookup for %s failed: %v", underlying, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, contracts)
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

func (s *Server) getHealth(c *gin.Context) {
	now := s.now()
	health := models.MHealth{
		Status:    "ok",
		Timestamp: now.UnixMilli(),
		Connections: models.MConnections{
			Clients: s.ClientCount(),
			Polygon: s.relay.UpstreamStatus(),
		},
	}
	if health.Connections.Polygon == nil {
		health.Connections.Polygon = []models.MUpstreamStatus{}
	}
	if s.session != nil {
		health.Session = s.session(now)
	}
	c.JSON(http.StatusOK, health)
}
