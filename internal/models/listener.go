package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is a single quote returned by the external price feed
type PriceQuote struct {
	Symbol         string
	Name           string
	Price          decimal.Decimal
	PriceChange24h decimal.Decimal
	FetchedAt      time.Time
}

// SweepResult summarises one pass of the overdue sweeper
type SweepResult struct {
	Checked       int     `json:"checked"`
	MarkedOverdue []int64 `json:"markedOverdue"`
}
