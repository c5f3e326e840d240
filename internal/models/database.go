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

type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft    InvoiceStatus = "draft"
	InvoiceStatusPending  InvoiceStatus = "pending"
	InvoiceStatusEscrowed InvoiceStatus = "escrowed"
	InvoiceStatusPaid     InvoiceStatus = "paid"
	InvoiceStatusOverdue  InvoiceStatus = "overdue"
	InvoiceStatusRefunded InvoiceStatus = "refunded"
)

// AllInvoiceStatuses lists every status an invoice can hold
var AllInvoiceStatuses = []InvoiceStatus{
	InvoiceStatusDraft,
	InvoiceStatusPending,
	InvoiceStatusEscrowed,
	InvoiceStatusPaid,
	InvoiceStatusOverdue,
	InvoiceStatusRefunded,
}

func (s InvoiceStatus) Valid() bool {
	for _, status := range AllInvoiceStatuses {
		if s == status {
			return true
		}
	}
	return false
}

type TransactionType string

const (
	TransactionTypePayment    TransactionType = "payment"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeConversion TransactionType = "conversion"
)

type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// User represents an account holder, identified by username and optionally a wallet address
type User struct {
	Id            int64           `json:"id" db:"id"`
	Username      string          `json:"username" db:"username"`
	WalletAddress string          `json:"walletAddress,omitempty" db:"wallet_address"`
	Role          Role            `json:"role,omitempty" db:"role"`
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	Email         string          `json:"email,omitempty" db:"email"`
	CompanyName   string          `json:"companyName,omitempty" db:"company_name"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
}

// Client is an address-book entry for someone a user bills
type Client struct {
	Id        int64     `json:"id" db:"id"`
	UserId    int64     `json:"userId" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email,omitempty" db:"email"`
	Company   string    `json:"company,omitempty" db:"company"`
	Address   string    `json:"address,omitempty" db:"address"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Wallet is a blockchain address registered to a user
type Wallet struct {
	Id        int64     `json:"id" db:"id"`
	UserId    int64     `json:"userId" db:"user_id"`
	Address   string    `json:"address" db:"address"`
	Network   string    `json:"network" db:"network"`
	Label     string    `json:"label,omitempty" db:"label"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// InvoiceItem is a single billed line; items are stored as a JSON array on the invoice row
type InvoiceItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

type Invoice struct {
	Id                     int64               `json:"id" db:"id"`
	InvoiceNumber          string              `json:"invoiceNumber" db:"invoice_number"`
	CreatorId              int64               `json:"creatorId" db:"creator_id"`
	ClientId               *int64              `json:"clientId,omitempty" db:"client_id"`
	CreatorWalletAddress   string              `json:"creatorWalletAddress,omitempty" db:"creator_wallet_address"`
	RecipientName          string              `json:"recipientName" db:"recipient_name"`
	RecipientWalletAddress string              `json:"recipientWalletAddress,omitempty" db:"recipient_wallet_address"`
	Amount                 decimal.Decimal     `json:"amount" db:"amount"`
	FiatAmount             decimal.NullDecimal `json:"fiatAmount" db:"fiat_amount"`
	CryptoAmount           decimal.NullDecimal `json:"cryptoAmount" db:"crypto_amount"`
	CryptoType             string              `json:"cryptoType" db:"crypto_type"`
	Description            string              `json:"description,omitempty" db:"description"`
	Status                 InvoiceStatus       `json:"status" db:"status"`
	DueDate                time.Time           `json:"dueDate" db:"due_date"`
	IssueDate              time.Time           `json:"issueDate" db:"issue_date"`
	PaymentDate            *time.Time          `json:"paymentDate,omitempty" db:"payment_date"`
	RefundDate             *time.Time          `json:"refundDate,omitempty" db:"refund_date"`
	EscrowDate             *time.Time          `json:"escrowDate,omitempty" db:"escrow_date"`
	TransactionHash        string              `json:"transactionHash,omitempty" db:"transaction_hash"`
	EscrowAccountAddress   string              `json:"escrowAccountAddress,omitempty" db:"escrow_account_address"`
	Items                  []InvoiceItem       `json:"items" db:"items"`
	Notes                  string              `json:"notes,omitempty" db:"notes"`
	Template               string              `json:"template,omitempty" db:"template"`
	ConvertOnPayment       bool                `json:"convertOnPayment" db:"convert_on_payment"`
	Version                int64               `json:"version" db:"version"`
	CreatedAt              time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt              time.Time           `json:"updatedAt" db:"updated_at"`
}

// Transaction is an immutable record of a payment, refund or conversion.
// Only Status may change after the row is written.
type Transaction struct {
	Id                     int64               `json:"id" db:"id"`
	InvoiceId              *int64              `json:"invoiceId,omitempty" db:"invoice_id"`
	SenderWalletAddress    string              `json:"senderWalletAddress" db:"sender_wallet_address"`
	RecipientWalletAddress string              `json:"recipientWalletAddress" db:"recipient_wallet_address"`
	Amount                 decimal.Decimal     `json:"amount" db:"amount"`
	FiatAmount             decimal.NullDecimal `json:"fiatAmount" db:"fiat_amount"`
	TransactionType        TransactionType     `json:"transactionType" db:"transaction_type"`
	Status                 TransactionStatus   `json:"status" db:"status"`
	TransactionHash        string              `json:"transactionHash,omitempty" db:"transaction_hash"`
	Signature              string              `json:"signature,omitempty" db:"signature"`
	Memo                   string              `json:"memo,omitempty" db:"memo"`
	Timestamp              time.Time           `json:"timestamp" db:"timestamp"`
}

// Payment is the legacy payment record kept alongside Transaction
type Payment struct {
	Id            int64               `json:"id" db:"id"`
	UserId        int64               `json:"userId" db:"user_id"`
	InvoiceId     *int64              `json:"invoiceId,omitempty" db:"invoice_id"`
	Amount        decimal.Decimal     `json:"amount" db:"amount"`
	CryptoAmount  decimal.NullDecimal `json:"cryptoAmount" db:"crypto_amount"`
	CryptoType    string              `json:"cryptoType,omitempty" db:"crypto_type"`
	Status        PaymentStatus       `json:"status" db:"status"`
	TransactionId string              `json:"transactionId,omitempty" db:"transaction_id"`
	CreatedAt     time.Time           `json:"createdAt" db:"created_at"`
}

type Contact struct {
	Id            int64     `json:"id" db:"id"`
	UserId        int64     `json:"userId" db:"user_id"`
	Name          string    `json:"name" db:"name"`
	WalletAddress string    `json:"walletAddress" db:"wallet_address"`
	Email         string    `json:"email,omitempty" db:"email"`
	Company       string    `json:"company,omitempty" db:"company"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

// CryptoPrice is a cached quote row; the latest write wins
type CryptoPrice struct {
	Symbol         string          `json:"symbol" db:"symbol"`
	Name           string          `json:"name" db:"name"`
	Price          decimal.Decimal `json:"price" db:"price"`
	PriceChange24h decimal.Decimal `json:"priceChange24h" db:"price_change_24h"`
	LastUpdated    time.Time       `json:"lastUpdated" db:"last_updated"`
}
