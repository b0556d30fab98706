package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/milkbill/pkg/db/pagination"
)

type ListLogRequest struct {
	OwnerID snowflake.ID
	pagination.Pagination
}

type ListLogResponse struct {
	Items    []LogEntry          `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Service interface {
	// Dispatch is best-effort: failures are logged and recorded, never returned.
	Dispatch(ctx context.Context, msg Message)
	ListLog(ctx context.Context, req ListLogRequest) (ListLogResponse, error)
}
