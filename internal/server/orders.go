package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/milkbill/internal/order/domain"
	"github.com/smallbiznis/milkbill/internal/period"
)

type upsertOrderRequest struct {
	OwnerID  string          `json:"owner_id"`
	Date     string          `json:"date"`
	Quantity decimal.Decimal `json:"quantity"`
	Status   *string         `json:"status"`
}

type generateOrdersRequest struct {
	OwnerID   string `json:"owner_id"`
	StartDate string `json:"start_date"`
	Days      int    `json:"days"`
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) ListOrders(c *gin.Context) {
	ownerID, err := parseOptionalSnowflakeID("owner_id", c.Query("owner_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	date, err := parseOptionalDate(c.Query("date"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	month, err := parseOptionalMonth(c.Query("month"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.orderSvc.List(c.Request.Context(), callerFrom(c), orderdomain.ListOrdersRequest{
		OwnerID: ownerID,
		Date:    date,
		Month:   month,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpsertOrder(c *gin.Context) {
	var req upsertOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	ownerID, err := parseOptionalSnowflakeID("owner_id", req.OwnerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	date, err := period.ParseDate(req.Date)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var status *orderdomain.Status
	if req.Status != nil {
		parsed, err := orderdomain.ParseStatus(*req.Status)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		status = &parsed
	}

	resp, err := s.orderSvc.UpsertOrder(c.Request.Context(), callerFrom(c), orderdomain.UpsertOrderRequest{
		OwnerID:  ownerID,
		Date:     date,
		Quantity: req.Quantity,
		Status:   status,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GenerateDefaultOrders(c *gin.Context) {
	var req generateOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	ownerID, err := parseOptionalSnowflakeID("owner_id", req.OwnerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	start, err := parseOptionalDate(req.StartDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	generate := orderdomain.GenerateDefaultsRequest{OwnerID: ownerID, Days: req.Days}
	if start != nil {
		generate.StartDate = *start
	}
	created, err := s.orderSvc.GenerateDefaults(c.Request.Context(), callerFrom(c), generate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"created": created}})
}

func (s *Server) SetOrderStatus(c *gin.Context) {
	id, err := parseRequiredSnowflakeID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req orderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	status, err := orderdomain.ParseStatus(req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.orderSvc.SetStatus(c.Request.Context(), callerFrom(c), id, status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c.Request.Context(), "order.status", "order", id.String(), map[string]any{
		"owner_id": resp.OwnerID.String(),
		"date":     period.FormatDate(resp.OrderDate),
		"status":   string(resp.Status),
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
