package providers

import (
	"github.com/smallbiznis/milkbill/internal/providers/email"
	"github.com/smallbiznis/milkbill/internal/providers/pdf"
	"github.com/smallbiznis/milkbill/internal/providers/sms"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	sms.Module,
	pdf.Module,
)
