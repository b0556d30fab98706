package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/milkbill/internal/period"
	pricedomain "github.com/smallbiznis/milkbill/internal/price/domain"
)

const priceHistoryLimit = 12

type setPriceRequest struct {
	PricePerLiter decimal.Decimal `json:"price_per_liter"`
	EffectiveDate string          `json:"effective_date"`
}

func (s *Server) GetPricing(c *gin.Context) {
	ctx := c.Request.Context()
	current, ok, err := s.priceSvc.CurrentPrice(ctx, s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	history, err := s.priceSvc.History(ctx, priceHistoryLimit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var data *pricedomain.PriceSetting
	if ok {
		data = &current
	}
	c.JSON(http.StatusOK, gin.H{"data": data, "history": history})
}

func (s *Server) SetPrice(c *gin.Context) {
	var req setPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	effective, err := parseOptionalDate(req.EffectiveDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.priceSvc.SetPrice(c.Request.Context(), pricedomain.SetPriceRequest{
		PricePerLiter: req.PricePerLiter,
		EffectiveDate: effective,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c.Request.Context(), "price.set", "price", resp.ID.String(), map[string]any{
		"price_per_liter": resp.PricePerLiter.String(),
		"effective_date":  period.FormatDate(resp.EffectiveDate),
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
