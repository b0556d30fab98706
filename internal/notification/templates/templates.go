// Package templates renders the notification messages sent to owners.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/milkbill/internal/notification/domain"
)

//go:embed *.html
var files embed.FS

const (
	accentBlue  template.CSS = "#2563eb"
	accentGreen template.CSS = "#16a34a"
	accentRed   template.CSS = "#dc2626"
)

var pages = map[domain.Category]*template.Template{
	domain.CategoryStatement:      mustParse("statement.html"),
	domain.CategoryReminder:       mustParse("reminder.html"),
	domain.CategoryPaymentSuccess: mustParse("payment_success.html"),
	domain.CategoryPaymentFailure: mustParse("payment_failure.html"),
}

func mustParse(name string) *template.Template {
	return template.Must(template.ParseFS(files, "layout.html", name))
}

// Recipient is the contact info of the owner being notified.
type Recipient struct {
	OwnerID snowflake.ID
	Name    string
	Email   string
	Phone   string
}

type StatementData struct {
	Recipient
	Month       string
	TotalLiters string
	Amount      string
	DueDate     string
	PaymentLink string
	PDF         []byte
}

type ReminderData struct {
	Recipient
	Month       string
	Amount      string
	DueDate     string
	PaymentLink string
	Overdue     bool
}

type PaymentData struct {
	Recipient
	Month         string
	Amount        string
	TransactionID string
	PaymentLink   string
}

type view struct {
	Title       string
	Accent      template.CSS
	OwnerName   string
	Month       string
	TotalLiters string
	Amount      string
	DueDate     string
	PaymentLink string
	Overdue     bool

	TransactionID string
}

func Statement(d StatementData) (domain.Message, error) {
	html, err := render(domain.CategoryStatement, view{
		Title:       "Monthly Statement",
		Accent:      accentBlue,
		OwnerName:   d.Name,
		Month:       d.Month,
		TotalLiters: d.TotalLiters,
		Amount:      d.Amount,
		DueDate:     d.DueDate,
		PaymentLink: d.PaymentLink,
	})
	if err != nil {
		return domain.Message{}, err
	}

	msg := newMessage(d.Recipient, domain.CategoryStatement)
	if msg.Email = emailTo(d.Email, "Monthly Milk Delivery Statement - "+d.Month, html); msg.Email != nil && len(d.PDF) > 0 {
		msg.Email.Attachments = []domain.Attachment{{
			Filename:    statementFilename(d.Name, d.Month),
			ContentType: "application/pdf",
			Content:     d.PDF,
		}}
	}
	msg.SMS = smsTo(d.Phone, fmt.Sprintf("Milk bill %s: %s L, Rs %s, due %s.%s",
		d.Month, d.TotalLiters, d.Amount, d.DueDate, payHint(d.PaymentLink)))
	return msg, nil
}

func Reminder(d ReminderData) (domain.Message, error) {
	html, err := render(domain.CategoryReminder, view{
		Title:       "Payment Reminder",
		Accent:      accentBlue,
		OwnerName:   d.Name,
		Month:       d.Month,
		Amount:      d.Amount,
		DueDate:     d.DueDate,
		PaymentLink: d.PaymentLink,
		Overdue:     d.Overdue,
	})
	if err != nil {
		return domain.Message{}, err
	}

	msg := newMessage(d.Recipient, domain.CategoryReminder)
	msg.Email = emailTo(d.Email, "Payment Reminder - Milk Delivery Service", html)
	msg.SMS = smsTo(d.Phone, fmt.Sprintf("Reminder: milk bill %s of Rs %s is due %s.%s",
		d.Month, d.Amount, d.DueDate, payHint(d.PaymentLink)))
	return msg, nil
}

func PaymentSuccess(d PaymentData) (domain.Message, error) {
	html, err := render(domain.CategoryPaymentSuccess, view{
		Title:         "Payment Successful",
		Accent:        accentGreen,
		OwnerName:     d.Name,
		Month:         d.Month,
		Amount:        d.Amount,
		TransactionID: d.TransactionID,
	})
	if err != nil {
		return domain.Message{}, err
	}

	msg := newMessage(d.Recipient, domain.CategoryPaymentSuccess)
	msg.Email = emailTo(d.Email, "Payment Successful - Milk Delivery Service", html)
	msg.SMS = smsTo(d.Phone, fmt.Sprintf("Payment of Rs %s received for %s. Txn %s. Thank you!",
		d.Amount, d.Month, d.TransactionID))
	return msg, nil
}

func PaymentFailure(d PaymentData) (domain.Message, error) {
	html, err := render(domain.CategoryPaymentFailure, view{
		Title:         "Payment Failed",
		Accent:        accentRed,
		OwnerName:     d.Name,
		Month:         d.Month,
		Amount:        d.Amount,
		TransactionID: d.TransactionID,
		PaymentLink:   d.PaymentLink,
	})
	if err != nil {
		return domain.Message{}, err
	}

	msg := newMessage(d.Recipient, domain.CategoryPaymentFailure)
	msg.Email = emailTo(d.Email, "Payment Failed - Milk Delivery Service", html)
	msg.SMS = smsTo(d.Phone, fmt.Sprintf("Payment of Rs %s for %s failed.%s",
		d.Amount, d.Month, payHint(d.PaymentLink)))
	return msg, nil
}

func render(category domain.Category, v view) (string, error) {
	tmpl, ok := pages[category]
	if !ok {
		return "", fmt.Errorf("no template for %s", category)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", v); err != nil {
		return "", fmt.Errorf("render %s: %w", category, err)
	}
	return buf.String(), nil
}

func newMessage(r Recipient, category domain.Category) domain.Message {
	return domain.Message{OwnerID: r.OwnerID, Category: category}
}

func emailTo(address, subject, html string) *domain.EmailContent {
	if strings.TrimSpace(address) == "" {
		return nil
	}
	return &domain.EmailContent{To: address, Subject: subject, HTML: html}
}

func smsTo(phone, text string) *domain.SMSContent {
	if strings.TrimSpace(phone) == "" {
		return nil
	}
	return &domain.SMSContent{To: phone, Text: text}
}

func payHint(link string) string {
	if link == "" {
		return ""
	}
	return " Pay: " + link
}

// statementFilename gives the attachment a stable, owner-readable name such as
// statement-cafe-dairy-03-2024.pdf.
func statementFilename(ownerName, month string) string {
	if name := slug.Make(ownerName); name != "" {
		return "statement-" + name + "-" + month + ".pdf"
	}
	return "statement-" + month + ".pdf"
}
