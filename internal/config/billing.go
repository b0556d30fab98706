package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingPolicy holds the operational knobs of billing and the background sweeps.
type BillingPolicy struct {
	DueDateOffsetDays  int  `mapstructure:"dueDateOffsetDays"`
	BatchConcurrency   int  `mapstructure:"batchConcurrency"`
	BillingHour        int  `mapstructure:"billingHour"`
	ReminderHour       int  `mapstructure:"reminderHour"`
	ReminderLeadDays   int  `mapstructure:"reminderLeadDays"`
	AutofillDays       int  `mapstructure:"autofillDays"`
	StatementAttachPDF bool `mapstructure:"statementAttachPDF"`
}

func DefaultBillingPolicy() BillingPolicy {
	return BillingPolicy{
		DueDateOffsetDays:  7,
		BatchConcurrency:   4,
		BillingHour:        23,
		ReminderHour:       10,
		ReminderLeadDays:   3,
		AutofillDays:       7,
		StatementAttachPDF: true,
	}
}

// BillingPolicyHolder serves the current policy and swaps it when billing.yml changes.
type BillingPolicyHolder struct {
	current atomic.Value // holds BillingPolicy
}

// NewStaticBillingPolicy returns a holder that never reloads.
func NewStaticBillingPolicy(policy BillingPolicy) *BillingPolicyHolder {
	holder := &BillingPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewBillingPolicyHolder() (*BillingPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/milkbill/config")
	v.AddConfigPath("/etc/milkbill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MILKBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingPolicy()
	v.SetDefault("billing.dueDateOffsetDays", defaults.DueDateOffsetDays)
	v.SetDefault("billing.batchConcurrency", defaults.BatchConcurrency)
	v.SetDefault("billing.billingHour", defaults.BillingHour)
	v.SetDefault("billing.reminderHour", defaults.ReminderHour)
	v.SetDefault("billing.reminderLeadDays", defaults.ReminderLeadDays)
	v.SetDefault("billing.autofillDays", defaults.AutofillDays)
	v.SetDefault("billing.statementAttachPDF", defaults.StatementAttachPDF)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var policy BillingPolicy
	if err := v.UnmarshalKey("billing", &policy); err != nil {
		return nil, err
	}
	if err := validateBillingPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticBillingPolicy(policy)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingPolicy
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-policy] reload failed: %v", err)
			return
		}
		if err := validateBillingPolicy(updated); err != nil {
			log.Printf("[billing-policy] invalid policy ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *BillingPolicyHolder) Get() BillingPolicy {
	if h == nil {
		return DefaultBillingPolicy()
	}
	policy, ok := h.current.Load().(BillingPolicy)
	if !ok {
		return DefaultBillingPolicy()
	}
	return policy
}

func validateBillingPolicy(p BillingPolicy) error {
	if p.DueDateOffsetDays < 0 {
		return errors.New("billing.dueDateOffsetDays cannot be negative")
	}
	if p.BatchConcurrency < 1 {
		return errors.New("billing.batchConcurrency must be at least 1")
	}
	if p.BillingHour < 0 || p.BillingHour > 23 {
		return errors.New("billing.billingHour must be within 0-23")
	}
	if p.ReminderHour < 0 || p.ReminderHour > 23 {
		return errors.New("billing.reminderHour must be within 0-23")
	}
	if p.ReminderLeadDays < 0 {
		return errors.New("billing.reminderLeadDays cannot be negative")
	}
	if p.AutofillDays < 0 || p.AutofillDays > 62 {
		return errors.New("billing.autofillDays must be within 0-62")
	}
	return nil
}
