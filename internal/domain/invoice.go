package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceLine is a single line item on a gateway invoice
type InvoiceLine struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// Invoice is an ephemeral read-only projection over a gateway invoice.
// It is never persisted; each fetch builds a fresh one.
type Invoice struct {
	Date      time.Time       `json:"date"`
	Total     decimal.Decimal `json:"total"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Lines     []InvoiceLine   `json:"lines"`
	ID        string          `json:"id"`
	Currency  string          `json:"currency"`
	Paid      bool            `json:"paid"`
	Attempted bool            `json:"attempted"`
}
