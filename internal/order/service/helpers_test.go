package service

import (
	"testing"

	"github.com/smallbiznis/milkbill/internal/period"
	"github.com/stretchr/testify/require"
)

func mustMonth(t *testing.T, raw string) period.Month {
	t.Helper()
	m, err := period.ParseMonth(raw)
	require.NoError(t, err)
	return m
}
