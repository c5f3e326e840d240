/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateInvoiceRequest is the body of POST /api/invoices
type CreateInvoiceRequest struct {
	InvoiceNumber          string           `json:"invoiceNumber" validate:"omitempty,max=64"`
	ClientId               *int64           `json:"clientId"`
	RecipientName          string           `json:"recipientName" validate:"required,max=200"`
	RecipientWalletAddress string           `json:"recipientWalletAddress" validate:"omitempty,max=64"`
	Amount                 decimal.Decimal  `json:"amount"`
	FiatAmount             *decimal.Decimal `json:"fiatAmount"`
	CryptoAmount           *decimal.Decimal `json:"cryptoAmount"`
	CryptoType             string           `json:"cryptoType" validate:"omitempty,max=10"`
	Description            string           `json:"description" validate:"max=2000"`
	DueDate                time.Time        `json:"dueDate"`
	IssueDate              *time.Time       `json:"issueDate"`
	Items                  []InvoiceItem    `json:"items"`
	Notes                  string           `json:"notes" validate:"max=2000"`
	Template               string           `json:"template" validate:"max=64"`
	ConvertOnPayment       bool             `json:"convertOnPayment"`
	Status                 string           `json:"status" validate:"omitempty,oneof=draft pending"`
}

// UpdateInvoiceRequest is the body of PATCH /api/invoices/{id}; nil fields are left unchanged
type UpdateInvoiceRequest struct {
	RecipientName          *string          `json:"recipientName" validate:"omitempty,max=200"`
	RecipientWalletAddress *string          `json:"recipientWalletAddress" validate:"omitempty,max=64"`
	Amount                 *decimal.Decimal `json:"amount"`
	DueDate                *time.Time       `json:"dueDate"`
	Description            *string          `json:"description" validate:"omitempty,max=2000"`
	Items                  *[]InvoiceItem   `json:"items"`
	Notes                  *string          `json:"notes" validate:"omitempty,max=2000"`
	Template               *string          `json:"template" validate:"omitempty,max=64"`
	Status                 *string          `json:"status" validate:"omitempty,oneof=draft pending escrowed paid overdue refunded"`
	TransactionHash        *string          `json:"transactionHash" validate:"omitempty,max=128"`
}

type CreateTransactionRequest struct {
	InvoiceId              *int64           `json:"invoiceId"`
	SenderWalletAddress    string           `json:"senderWalletAddress" validate:"required,max=64"`
	RecipientWalletAddress string           `json:"recipientWalletAddress" validate:"required,max=64"`
	Amount                 decimal.Decimal  `json:"amount"`
	FiatAmount             *decimal.Decimal `json:"fiatAmount"`
	TransactionType        string           `json:"transactionType" validate:"required,oneof=payment refund conversion"`
	Status                 string           `json:"status" validate:"omitempty,oneof=pending success failed"`
	TransactionHash        string           `json:"transactionHash" validate:"max=128"`
	Signature              string           `json:"signature" validate:"max=128"`
	Memo                   string           `json:"memo" validate:"max=500"`
}

type UpdateTransactionStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending success failed"`
}

type CreateContactRequest struct {
	Name          string `json:"name" validate:"required,max=200"`
	WalletAddress string `json:"walletAddress" validate:"required,max=64"`
	Email         string `json:"email" validate:"omitempty,email"`
	Company       string `json:"company" validate:"max=200"`
}

type ClientRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"omitempty,email"`
	Company string `json:"company" validate:"max=200"`
	Address string `json:"address" validate:"max=500"`
}

type UpdateClientRequest struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=200"`
	Email   *string `json:"email" validate:"omitempty,email"`
	Company *string `json:"company" validate:"omitempty,max=200"`
	Address *string `json:"address" validate:"omitempty,max=500"`
}

type SetRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=client freelancer"`
}

type ConnectWalletRequest struct {
	WalletAddress string `json:"walletAddress" validate:"required,max=64"`
	Username      string `json:"username" validate:"omitempty,min=3,max=64"`
}

type CreateWalletRequest struct {
	Address string `json:"address" validate:"required,max=64"`
	Network string `json:"network" validate:"omitempty,oneof=solana ethereum polygon arbitrum"`
	Label   string `json:"label" validate:"max=100"`
}

type CreatePaymentRequest struct {
	InvoiceId     *int64           `json:"invoiceId"`
	Amount        decimal.Decimal  `json:"amount"`
	CryptoAmount  *decimal.Decimal `json:"cryptoAmount"`
	CryptoType    string           `json:"cryptoType" validate:"omitempty,max=10"`
	Status        string           `json:"status" validate:"omitempty,oneof=PENDING COMPLETED FAILED"`
	TransactionId string           `json:"transactionId" validate:"max=128"`
}

// SolanaPaymentRequest records an on-chain payment against an invoice
type SolanaPaymentRequest struct {
	InvoiceId           int64           `json:"invoiceId" validate:"required,gt=0"`
	SenderWalletAddress string          `json:"senderWalletAddress" validate:"required,max=64"`
	Amount              decimal.Decimal `json:"amount"`
	Signature           string          `json:"signature" validate:"max=128"`
	Memo                string          `json:"memo" validate:"max=500"`
}

type AirdropRequest struct {
	Address string          `json:"address" validate:"required,max=64"`
	Amount  decimal.Decimal `json:"amount"`
}

type AirdropResult struct {
	Address   string          `json:"address"`
	Amount    decimal.Decimal `json:"amount"`
	Signature string          `json:"signature"`
}

type ConvertRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	FromCurrency string          `json:"fromCurrency" validate:"required,max=10"`
	ToCurrency   string          `json:"toCurrency" validate:"required,max=10"`
}

type CurrencyAmount struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

type ConvertResult struct {
	From CurrencyAmount  `json:"from"`
	To   CurrencyAmount  `json:"to"`
	Rate decimal.Decimal `json:"rate"`
}

// TransferRequest is the body of POST /api/walrus/wormhole/transfer
type TransferRequest struct {
	FromChain    string          `json:"fromChain" validate:"required"`
	ToChain      string          `json:"toChain" validate:"required"`
	FromAddress  string          `json:"fromAddress" validate:"required,max=128"`
	ToAddress    string          `json:"toAddress" validate:"required,max=128"`
	TokenAddress string          `json:"tokenAddress" validate:"max=128"`
	Amount       decimal.Decimal `json:"amount"`
}

type TransferResponse struct {
	Success       bool   `json:"success"`
	TransactionId string `json:"transactionId"`
	Message       string `json:"message"`
	Mode          string `json:"mode"`
}

// WalletBalance is an on-chain balance; Balance is in SOL
type WalletBalance struct {
	Address  string          `json:"address"`
	Balance  decimal.Decimal `json:"balance"`
	Lamports uint64          `json:"lamports"`
}

type ConnectWalletResult struct {
	User    *User          `json:"user"`
	Wallet  *Wallet        `json:"wallet"`
	Created bool           `json:"created"`
	Balance *WalletBalance `json:"balance,omitempty"`
}

// SolanaPrice is the response of GET /api/solana/price
type SolanaPrice struct {
	Symbol         string          `json:"symbol"`
	Price          decimal.Decimal `json:"price"`
	PriceChange24h decimal.Decimal `json:"priceChange24h"`
	LastUpdated    time.Time       `json:"lastUpdated"`
}

// TransactionResult pairs a recorded transaction with the invoice it settled, if any
type TransactionResult struct {
	Transaction *Transaction `json:"transaction"`
	Invoice     *Invoice     `json:"invoice,omitempty"`
}
