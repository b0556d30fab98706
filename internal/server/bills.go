package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/milkbill/internal/billing/domain"
	"github.com/smallbiznis/milkbill/internal/period"
)

type generateBillRequest struct {
	OwnerID string `json:"owner_id"`
	Month   string `json:"month"`
	Force   bool   `json:"force"`
}

type generateAllBillsRequest struct {
	Month string `json:"month"`
}

type billStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) ListBills(c *gin.Context) {
	ownerID, err := parseOptionalSnowflakeID("owner_id", c.Query("owner_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	month, err := parseOptionalMonth(c.Query("month"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	req := billingdomain.ListBillsRequest{OwnerID: ownerID, Month: month}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, err := billingdomain.ParseStatus(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		req.Status = status
	}

	resp, err := s.billingSvc.List(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetBill(c *gin.Context) {
	id, err := parseRequiredSnowflakeID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.billingSvc.Get(c.Request.Context(), callerFrom(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RenderStatement(c *gin.Context) {
	id, err := parseRequiredSnowflakeID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pdf, err := s.billingSvc.RenderStatement(c.Request.Context(), callerFrom(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="statement-%s.pdf"`, id.String()))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (s *Server) GenerateBill(c *gin.Context) {
	var req generateBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	ownerID, err := parseRequiredSnowflakeID("owner_id", req.OwnerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	month, err := period.ParseMonth(req.Month)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.billingSvc.GenerateBill(c.Request.Context(), billingdomain.GenerateBillRequest{
		OwnerID: ownerID,
		Month:   month,
		Force:   req.Force,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c.Request.Context(), "bill.generate", "bill", resp.ID.String(), map[string]any{
		"owner_id":     ownerID.String(),
		"month":        month.String(),
		"force":        req.Force,
		"total_amount": resp.TotalAmount.String(),
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GenerateAllBills(c *gin.Context) {
	var req generateAllBillsRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	month, err := parseOptionalMonth(req.Month)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var target period.Month
	if month != nil {
		target = *month
	}
	resp, err := s.billingSvc.GenerateAllBills(c.Request.Context(), target)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c.Request.Context(), "bill.generate_all", "billing_run", resp.Month, map[string]any{
		"generated": resp.Generated,
		"skipped":   resp.Skipped,
		"failed":    resp.Failed,
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetBillStatus(c *gin.Context) {
	id, err := parseRequiredSnowflakeID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req billStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	status, err := billingdomain.ParseStatus(req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.billingSvc.SetStatus(c.Request.Context(), callerFrom(c), id, status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c.Request.Context(), "bill.status", "bill", id.String(), map[string]any{
		"status": string(resp.Status),
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
