package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateBillingPolicy(t *testing.T) {
	assert.NoError(t, validateBillingPolicy(DefaultBillingPolicy()))

	bad := DefaultBillingPolicy()
	bad.BatchConcurrency = 0
	assert.Error(t, validateBillingPolicy(bad))

	bad = DefaultBillingPolicy()
	bad.BillingHour = 24
	assert.Error(t, validateBillingPolicy(bad))

	bad = DefaultBillingPolicy()
	bad.AutofillDays = 90
	assert.Error(t, validateBillingPolicy(bad))
}

func TestBillingPolicyHolderFallsBackToDefaults(t *testing.T) {
	var holder *BillingPolicyHolder
	assert.Equal(t, DefaultBillingPolicy(), holder.Get())

	custom := DefaultBillingPolicy()
	custom.DueDateOffsetDays = 10
	assert.Equal(t, 10, NewStaticBillingPolicy(custom).Get().DueDateOffsetDays)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("APP_BASE_URL", "https://milk.example.com/")
	t.Setenv("GATEWAY_TIMEOUT", "3s")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("BUSINESS_TIMEZONE", "Not/AZone")

	cfg := Load()
	assert.Equal(t, "https://milk.example.com", cfg.BaseURL)
	assert.Equal(t, "3s", cfg.Razorpay.Timeout.String())
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "UTC", cfg.Location().String())
}
