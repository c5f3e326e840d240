package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusFailed    TransferStatus = "failed"
)

// TransferModeSimulation marks transfers settled by the local simulator rather than a bridge network
const TransferModeSimulation = "simulation"

// BridgeTransfer is a cross-chain token transfer request and its eventual outcome
type BridgeTransfer struct {
	Id              string          `json:"id" db:"id"`
	UserId          *int64          `json:"userId,omitempty" db:"user_id"`
	FromChain       string          `json:"fromChain" db:"from_chain"`
	ToChain         string          `json:"toChain" db:"to_chain"`
	FromAddress     string          `json:"fromAddress" db:"from_address"`
	ToAddress       string          `json:"toAddress" db:"to_address"`
	TokenAddress    string          `json:"tokenAddress" db:"token_address"`
	TokenSymbol     string          `json:"tokenSymbol" db:"token_symbol"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Status          TransferStatus  `json:"status" db:"status"`
	TransactionHash string          `json:"transactionHash,omitempty" db:"transaction_hash"`
	Error           string          `json:"error,omitempty" db:"error"`
	Mode            string          `json:"mode" db:"mode"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`
}

func (t *BridgeTransfer) Terminal() bool {
	return t.Status == TransferStatusCompleted || t.Status == TransferStatusFailed
}

// FeeEstimate is denominated in the native token of each chain
type FeeEstimate struct {
	FromChain         string          `json:"fromChain"`
	ToChain           string          `json:"toChain"`
	Amount            decimal.Decimal `json:"amount"`
	SourceFee         decimal.Decimal `json:"sourceFee"`
	DestinationFee    decimal.Decimal `json:"destinationFee"`
	RelayerFee        decimal.Decimal `json:"relayerFee"`
	TotalFee          decimal.Decimal `json:"totalFee"`
	EstimatedValueUsd decimal.Decimal `json:"estimatedValueUsd"`
	Mode              string          `json:"mode"`
}
