package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/milkbill/internal/period"
)

func parseOptionalSnowflakeID(field, value string) (snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed <= 0 {
		return 0, newValidationError(field, "invalid_"+field, "invalid id")
	}
	return parsed, nil
}

func parseRequiredSnowflakeID(field, value string) (snowflake.ID, error) {
	id, err := parseOptionalSnowflakeID(field, value)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, newValidationError(field, "required", field+" is required")
	}
	return id, nil
}

func parseOptionalMonth(value string) (*period.Month, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	month, err := period.ParseMonth(trimmed)
	if err != nil {
		return nil, err
	}
	return &month, nil
}

func parseOptionalDate(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	date, err := period.ParseDate(trimmed)
	if err != nil {
		return nil, err
	}
	return &date, nil
}
