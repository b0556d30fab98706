package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/milkbill/internal/authorization"
	"github.com/smallbiznis/milkbill/internal/billing/domain"
	"github.com/smallbiznis/milkbill/internal/notification/templates"
	orderdomain "github.com/smallbiznis/milkbill/internal/order/domain"
	ownerdomain "github.com/smallbiznis/milkbill/internal/owner/domain"
	"github.com/smallbiznis/milkbill/internal/period"
	"github.com/smallbiznis/milkbill/internal/providers/pdf"
	"go.uber.org/zap"
)

func (s *Service) RenderStatement(ctx context.Context, caller authorization.Caller, billID snowflake.ID) ([]byte, error) {
	bill, err := s.Get(ctx, caller, billID)
	if err != nil {
		return nil, err
	}
	month, err := period.ParseMonth(bill.Month)
	if err != nil {
		return nil, err
	}
	owner, err := s.ownerSvc.Get(ctx, bill.OwnerID)
	if err != nil {
		return nil, err
	}
	delivered, err := s.deliveredOrders(ctx, bill.OwnerID, month)
	if err != nil {
		return nil, err
	}
	return s.pdf.RenderStatement(ctx, s.statementOf(owner, bill, delivered))
}

func (s *Service) statementOf(owner ownerdomain.Owner, bill domain.Bill, orders []*orderdomain.Order) pdf.Statement {
	lines := make([]pdf.StatementLine, 0, len(orders))
	for _, order := range orders {
		lines = append(lines, pdf.StatementLine{
			Date:      period.FormatDate(order.OrderDate),
			Quantity:  order.Quantity.StringFixed(2),
			UnitPrice: order.PricePerUnit.StringFixed(2),
			Amount:    order.Amount().StringFixed(2),
		})
	}
	return pdf.Statement{
		BusinessName: s.business,
		OwnerName:    owner.Name,
		OwnerEmail:   owner.Email,
		OwnerAddress: owner.Address,
		Month:        bill.Month,
		IssuedOn:     period.FormatDate(bill.UpdatedAt),
		DueDate:      period.FormatDate(bill.DueDate),
		PaymentLink:  bill.PaymentLink,
		Lines:        lines,
		TotalLiters:  bill.TotalLiters.StringFixed(2),
		TotalAmount:  bill.TotalAmount.StringFixed(2),
	}
}

// sendStatement notifies the owner after the bill is stored. Failures are logged only.
func (s *Service) sendStatement(ctx context.Context, owner ownerdomain.Owner, bill domain.Bill, orders []*orderdomain.Order) {
	ctx = context.WithoutCancel(ctx)

	var attachment []byte
	if s.policy.Get().StatementAttachPDF {
		doc, err := s.pdf.RenderStatement(ctx, s.statementOf(owner, bill, orders))
		if err != nil {
			s.log.Warn("statement pdf failed", zap.String("bill_id", bill.ID.String()), zap.Error(err))
		} else {
			attachment = doc
		}
	}

	msg, err := templates.Statement(templates.StatementData{
		Recipient:   recipientOf(owner),
		Month:       bill.Month,
		TotalLiters: bill.TotalLiters.StringFixed(2),
		Amount:      bill.TotalAmount.StringFixed(2),
		DueDate:     period.FormatDate(bill.DueDate),
		PaymentLink: bill.PaymentLink,
		PDF:         attachment,
	})
	if err != nil {
		s.log.Warn("statement message failed", zap.String("bill_id", bill.ID.String()), zap.Error(err))
		return
	}
	s.notifier.Dispatch(ctx, msg)
}

func (s *Service) SendReminders(ctx context.Context, asOf time.Time) (domain.ReminderSummary, error) {
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}
	today := period.DateOf(asOf, s.clock.Location())
	dueBy := today.AddDate(0, 0, s.policy.Get().ReminderLeadDays)

	bills, err := s.repo.ListPendingDueBy(ctx, s.db, dueBy)
	if err != nil {
		return domain.ReminderSummary{}, err
	}

	summary := domain.ReminderSummary{Due: len(bills)}
	owners := make(map[snowflake.ID]ownerdomain.Owner)
	for _, bill := range bills {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		owner, ok := owners[bill.OwnerID]
		if !ok {
			owner, err = s.ownerSvc.Get(ctx, bill.OwnerID)
			if err != nil {
				s.log.Warn("reminder skipped, owner lookup failed",
					zap.String("bill_id", bill.ID.String()),
					zap.Error(err),
				)
				summary.Skipped++
				continue
			}
			owners[bill.OwnerID] = owner
		}

		msg, err := templates.Reminder(templates.ReminderData{
			Recipient:   recipientOf(owner),
			Month:       bill.Month,
			Amount:      bill.TotalAmount.StringFixed(2),
			DueDate:     period.FormatDate(bill.DueDate),
			PaymentLink: bill.PaymentLink,
			Overdue:     bill.DueDate.Before(today),
		})
		if err != nil {
			s.log.Warn("reminder message failed", zap.String("bill_id", bill.ID.String()), zap.Error(err))
			summary.Skipped++
			continue
		}
		s.notifier.Dispatch(ctx, msg)
		summary.Sent++
	}
	return summary, nil
}

func recipientOf(owner ownerdomain.Owner) templates.Recipient {
	return templates.Recipient{
		OwnerID: owner.ID,
		Name:    owner.Name,
		Email:   owner.Email,
		Phone:   owner.Phone,
	}
}
