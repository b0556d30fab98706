package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/milkbill/internal/audit/masking"
	notificationdomain "github.com/smallbiznis/milkbill/internal/notification/domain"
	ownerdomain "github.com/smallbiznis/milkbill/internal/owner/domain"
	"github.com/smallbiznis/milkbill/pkg/db/pagination"
)

type updateSettingsRequest struct {
	DefaultQuantity *decimal.Decimal `json:"default_quantity"`
	SkipDays        *[]int           `json:"skip_days"`
	Address         *string          `json:"address"`
	Phone           *string          `json:"phone"`
	ContactPerson   *string          `json:"contact_person"`
}

// settingsOwner returns the caller's own id; admins may address any owner via owner_id.
func (s *Server) settingsOwner(c *gin.Context) (snowflake.ID, error) {
	caller := callerFrom(c)
	if !caller.IsPrivileged() {
		return caller.ID, nil
	}
	ownerID, err := parseOptionalSnowflakeID("owner_id", c.Query("owner_id"))
	if err != nil {
		return 0, err
	}
	if ownerID == 0 {
		return caller.ID, nil
	}
	return ownerID, nil
}

func (s *Server) GetSettings(c *gin.Context) {
	ownerID, err := s.settingsOwner(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.ownerSvc.GetSettings(c.Request.Context(), ownerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateSettings(c *gin.Context) {
	ownerID, err := s.settingsOwner(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ownerSvc.UpdateSettings(c.Request.Context(), ownerID, ownerdomain.UpdateSettingsRequest{
		DefaultQuantity: req.DefaultQuantity,
		SkipDays:        req.SkipDays,
		Address:         req.Address,
		Phone:           req.Phone,
		ContactPerson:   req.ContactPerson,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c.Request.Context(), "owner.settings.update", "owner", ownerID.String(), masking.MaskFields(changedSettings(req), "phone"))

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListNotifications(c *gin.Context) {
	ownerID, err := parseOptionalSnowflakeID("owner_id", c.Query("owner_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.notificationSvc.ListLog(c.Request.Context(), notificationdomain.ListLogRequest{
		OwnerID:    ownerID,
		Pagination: page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Items, "page_info": resp.PageInfo})
}

func changedSettings(req updateSettingsRequest) map[string]any {
	changed := map[string]any{}
	if req.DefaultQuantity != nil {
		changed["default_quantity"] = req.DefaultQuantity.String()
	}
	if req.SkipDays != nil {
		changed["skip_days"] = *req.SkipDays
	}
	if req.Address != nil {
		changed["address"] = *req.Address
	}
	if req.Phone != nil {
		changed["phone"] = *req.Phone
	}
	if req.ContactPerson != nil {
		changed["contact_person"] = *req.ContactPerson
	}
	return changed
}
