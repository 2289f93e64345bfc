package workflow

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethodACH is the only disbursement channel currently in use.
const PaymentMethodACH = "ACH_TRANSFER"

// PaymentDetails is the structured record generated when an expense is paid.
// It is stored on the expense and mirrored into the payment event outbox.
type PaymentDetails struct {
	PaymentId     string          `json:"payment_id"`
	ProcessedAt   time.Time       `json:"processed_at"`
	PaymentMethod string          `json:"payment_method"`
	VendorId      string          `json:"vendor_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

// BuildPaymentDetails generates the payment record for a processed expense.
func BuildPaymentDetails(snapshot *ExpenseSnapshot, processedAt time.Time) *PaymentDetails {
	return &PaymentDetails{
		PaymentId:     uuid.NewString(),
		ProcessedAt:   processedAt,
		PaymentMethod: PaymentMethodACH,
		VendorId:      snapshot.Vendor,
		Amount:        snapshot.Amount,
		Currency:      snapshot.Currency,
	}
}
