package pdf

import (
	"context"
	"errors"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"go.uber.org/fx"
)

var ErrEmptyStatement = errors.New("empty_statement")

// Statement is the printable monthly bill of one owner. Amounts arrive pre-formatted.
type Statement struct {
	BusinessName string
	OwnerName    string
	OwnerEmail   string
	OwnerAddress string
	Month        string
	IssuedOn     string
	DueDate      string
	PaymentLink  string

	Lines []StatementLine

	TotalLiters string
	TotalAmount string
}

type StatementLine struct {
	Date      string
	Quantity  string
	UnitPrice string
	Amount    string
}

type Renderer interface {
	RenderStatement(ctx context.Context, st Statement) ([]byte, error)
}

type MarotoRenderer struct{}

func New() Renderer {
	return &MarotoRenderer{}
}

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

var (
	headerStyle = props.Text{Style: fontstyle.Bold, Size: 9}
	cellStyle   = props.Text{Size: 9}
	rightHeader = props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}
	rightCell   = props.Text{Size: 9, Align: align.Right}
)

func (r *MarotoRenderer) RenderStatement(ctx context.Context, st Statement) ([]byte, error) {
	if st.Month == "" || st.OwnerName == "" {
		return nil, ErrEmptyStatement
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	m := maroto.New(cfg)

	business := st.BusinessName
	if business == "" {
		business = "Milk Delivery"
	}
	m.AddRow(12,
		text.NewCol(8, business, props.Text{Size: 18, Style: fontstyle.Bold}),
		text.NewCol(4, "Statement "+st.Month, props.Text{Size: 12, Align: align.Right, Top: 3}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(st.OwnerName, props.Text{Top: 5}),
			text.New(st.OwnerAddress, props.Text{Top: 9}),
			text.New(st.OwnerEmail, props.Text{Top: 13}),
		),
		col.New(6).Add(
			text.New("Issued: "+st.IssuedOn, props.Text{Align: align.Right}),
			text.New("Due: "+st.DueDate, props.Text{Top: 4, Align: align.Right}),
		),
	)

	m.AddRow(8,
		text.NewCol(4, "Date", headerStyle),
		text.NewCol(2, "Liters", rightHeader),
		text.NewCol(3, "Price / liter", rightHeader),
		text.NewCol(3, "Amount", rightHeader),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range st.Lines {
		m.AddRow(6,
			text.NewCol(4, item.Date, cellStyle),
			text.NewCol(2, item.Quantity, rightCell),
			text.NewCol(3, item.UnitPrice, rightCell),
			text.NewCol(3, item.Amount, rightCell),
		)
	}
	if len(st.Lines) == 0 {
		m.AddRow(6, text.NewCol(12, "No deliveries this month.", cellStyle))
	}

	m.AddRow(2, line.NewCol(12))
	m.AddRow(7,
		col.New(6),
		text.NewCol(3, "Total liters", headerStyle),
		text.NewCol(3, st.TotalLiters, rightHeader),
	)
	m.AddRow(7,
		col.New(6),
		text.NewCol(3, "Amount due", headerStyle),
		text.NewCol(3, st.TotalAmount, rightHeader),
	)

	if st.PaymentLink != "" {
		m.AddRow(12, text.NewCol(12, "Pay online: "+st.PaymentLink, props.Text{Size: 9, Top: 5}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
