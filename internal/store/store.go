package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cryptopay-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound               = errors.New("not found")
	ErrDuplicateInvoiceNumber = errors.New("invoice number already exists")
	ErrDuplicateUser          = errors.New("user already exists")
	ErrInvalidTransition      = errors.New("invalid invoice status transition")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
)

// ValidationError carries per-field messages keyed by the request's JSON field names.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
}

// OrNil returns nil when no field errors were collected, so callers can
// return the result of a validation pass directly.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// TransitionError reports a rejected invoice status change. It unwraps to ErrInvalidTransition.
type TransitionError struct {
	InvoiceId int64
	From      models.InvoiceStatus
	To        models.InvoiceStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invoice %d cannot move from %s to %s", e.InvoiceId, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

type CreateUserParams struct {
	Username      string
	WalletAddress string
	Role          models.Role
	Email         string
	CompanyName   string
}

type CreateInvoiceParams struct {
	InvoiceNumber          string
	CreatorId              int64
	ClientId               *int64
	CreatorWalletAddress   string
	RecipientName          string
	RecipientWalletAddress string
	Amount                 decimal.Decimal
	FiatAmount             decimal.NullDecimal
	CryptoAmount           decimal.NullDecimal
	CryptoType             string
	Description            string
	Status                 models.InvoiceStatus
	DueDate                time.Time
	IssueDate              time.Time
	Items                  []models.InvoiceItem
	Notes                  string
	Template               string
	ConvertOnPayment       bool
}

// InvoiceFilter conjoins every field that is set.
type InvoiceFilter struct {
	CreatorId *int64
	ClientId  *int64
	Status    models.InvoiceStatus
}

type CreateTransactionParams struct {
	InvoiceId              *int64
	SenderWalletAddress    string
	RecipientWalletAddress string
	Amount                 decimal.Decimal
	FiatAmount             decimal.NullDecimal
	TransactionType        models.TransactionType
	Status                 models.TransactionStatus
	TransactionHash        string
	Signature              string
	Memo                   string
	Timestamp              time.Time
}

type TransactionFilter struct {
	WalletAddress   string
	InvoiceId       *int64
	TransactionType models.TransactionType
}

type CreatePaymentParams struct {
	UserId        int64
	InvoiceId     *int64
	Amount        decimal.Decimal
	CryptoAmount  decimal.NullDecimal
	CryptoType    string
	Status        models.PaymentStatus
	TransactionId string
}

// InvoiceMutation edits an invoice inside a storage transaction. It receives the
// current row and modifies it in place; returning an error aborts the update.
type InvoiceMutation func(invoice *models.Invoice) error

// Store defines the contract the relational backend must satisfy.
type Store interface {
	// --- Users ---
	CreateUser(ctx context.Context, params CreateUserParams) (*models.User, error)
	GetUserById(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByWallet(ctx context.Context, walletAddress string) (*models.User, error)
	GetUsers(ctx context.Context) ([]models.User, error)
	UpdateUserRole(ctx context.Context, id int64, role models.Role) (*models.User, error)
	UpdateUserWallet(ctx context.Context, id int64, walletAddress string) (*models.User, error)

	// --- Clients ---
	CreateClient(ctx context.Context, client models.Client) (*models.Client, error)
	GetClient(ctx context.Context, id int64) (*models.Client, error)
	ListClients(ctx context.Context, userId int64) ([]models.Client, error)
	UpdateClient(ctx context.Context, client models.Client) (*models.Client, error)
	DeleteClient(ctx context.Context, id int64) error

	// --- Wallets ---
	CreateWallet(ctx context.Context, wallet models.Wallet) (*models.Wallet, error)
	ListWallets(ctx context.Context, userId int64) ([]models.Wallet, error)
	GetWalletByAddress(ctx context.Context, address string) (*models.Wallet, error)

	// --- Invoices ---
	CreateInvoice(ctx context.Context, params CreateInvoiceParams) (*models.Invoice, error)
	GetInvoice(ctx context.Context, id int64) (*models.Invoice, error)
	GetInvoiceByNumber(ctx context.Context, invoiceNumber string) (*models.Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]models.Invoice, error)
	UpdateInvoice(ctx context.Context, id int64, mutate InvoiceMutation) (*models.Invoice, error)

	// --- Transactions ---
	CreateTransaction(ctx context.Context, params CreateTransactionParams) (*models.Transaction, *models.Invoice, error)
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id int64, status models.TransactionStatus) (*models.Transaction, *models.Invoice, error)

	// --- Payments ---
	CreatePayment(ctx context.Context, params CreatePaymentParams) (*models.Payment, error)
	ListPayments(ctx context.Context, userId int64) ([]models.Payment, error)
	ListPaymentsByInvoice(ctx context.Context, invoiceId int64) ([]models.Payment, error)

	// --- Contacts ---
	CreateContact(ctx context.Context, contact models.Contact) (*models.Contact, error)
	ListContacts(ctx context.Context, userId int64) ([]models.Contact, error)
	DeleteContact(ctx context.Context, userId, id int64) error

	// --- Prices ---
	UpsertPrice(ctx context.Context, price models.CryptoPrice) (*models.CryptoPrice, error)
	GetPrice(ctx context.Context, symbol string) (*models.CryptoPrice, error)
	ListPrices(ctx context.Context) ([]models.CryptoPrice, error)

	// --- Bridge transfers ---
	SaveTransfer(ctx context.Context, transfer models.BridgeTransfer) error
	GetTransfer(ctx context.Context, id string) (*models.BridgeTransfer, error)
	ListTransfers(ctx context.Context, userId *int64) ([]models.BridgeTransfer, error)

	// --- Lifecycle ---
	Ping(ctx context.Context) error
	Close()
}
