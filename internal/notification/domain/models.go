package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Channel string

const (
	ChannelEmail Channel = "Email"
	ChannelSMS   Channel = "SMS"
)

type Category string

const (
	CategoryStatement      Category = "Statement"
	CategoryReminder       Category = "Reminder"
	CategoryPaymentSuccess Category = "PaymentSuccess"
	CategoryPaymentFailure Category = "PaymentFailure"
)

type Status string

const (
	StatusSent   Status = "Sent"
	StatusFailed Status = "Failed"
)

// LogEntry records one delivery attempt on one channel.
type LogEntry struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	OwnerID  snowflake.ID `gorm:"column:owner_id" json:"owner_id"`
	Channel  Channel      `json:"channel"`
	Category Category     `json:"category"`
	Message  string       `json:"message"`
	Status   Status       `json:"status"`
	Error    string       `json:"error,omitempty"`
	SentAt   time.Time    `gorm:"column:sent_at" json:"sent_at"`
}

func (LogEntry) TableName() string { return "notification_logs" }

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

type EmailContent struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

type SMSContent struct {
	To   string
	Text string
}

// Message is one logical notification fanned out to every present channel.
type Message struct {
	OwnerID  snowflake.ID
	Category Category
	Email    *EmailContent
	SMS      *SMSContent
}
