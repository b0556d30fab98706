package email

import (
	"testing"

	"github.com/smallbiznis/milkbill/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildMessageRequiresRecipient(t *testing.T) {
	p := NewSMTP(Config{Host: "localhost", Port: 1025, From: "billing@example.com"}, zap.NewNop())

	_, err := p.buildMessage(Message{To: []string{" "}, Subject: "Statement"})
	assert.ErrorIs(t, err, ErrNoRecipient)
}

func TestBuildMessageWithAttachment(t *testing.T) {
	p := NewSMTP(Config{Host: "localhost", Port: 1025, From: "billing@example.com", FromName: "Milk Delivery"}, zap.NewNop())

	msg, err := p.buildMessage(Message{
		To:      []string{"cafe@example.com"},
		Subject: "Your statement",
		HTML:    "<p>hello</p>",
		Attachments: []Attachment{
			{Filename: "statement.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.3")},
		},
	})
	require.NoError(t, err)

	recipients, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"cafe@example.com"}, recipients)
	assert.Len(t, msg.GetAttachments(), 1)
}

func TestBuildMessageRejectsBadSender(t *testing.T) {
	p := NewSMTP(Config{Host: "localhost", Port: 1025, From: "not an address"}, zap.NewNop())

	_, err := p.buildMessage(Message{To: []string{"cafe@example.com"}})
	assert.Error(t, err)
}

func TestNewFromConfigWithoutHostIsNoOp(t *testing.T) {
	provider := NewFromConfig(config.Config{}, zap.NewNop())
	_, ok := provider.(*NoOpProvider)
	assert.True(t, ok)
}
