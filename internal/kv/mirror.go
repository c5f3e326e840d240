package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"cryptopay-go/internal/models"
	"cryptopay-go/internal/store"

	"go.uber.org/zap"
)

// Key layout of the mirror.
const (
	keyInvoice        = "invoice:%d"
	keyInvoiceNumber  = "invoice:number:%s"
	keyInvoiceCreator = "invoice:creator:%d"
	keyInvoiceStatus  = "invoice:status:%s"
	keyInvoiceAll     = "invoice:all"
	keyTransaction    = "tx:%d"
	keyTransfer       = "wormhole:%s"
	keyTransferUser   = "wormhole:user:%d"
	keyTransferAll    = "wormhole:all"
)

// Source is the relational data a mirror is rebuilt from.
type Source interface {
	ListInvoices(ctx context.Context, filter store.InvoiceFilter) ([]models.Invoice, error)
	ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]models.Transaction, error)
	ListTransfers(ctx context.Context, userId *int64) ([]models.BridgeTransfer, error)
}

type RebuildStats struct {
	Invoices     int
	Transactions int
	Transfers    int
}

// Mirror maintains denormalised copies of invoices, transactions and bridge
// transfers plus the secondary indexes used for lookups. It is derived data:
// Rebuild regenerates it from the relational store.
type Mirror struct {
	backend Backend
	mu      sync.Mutex
}

func NewMirror(backend Backend) *Mirror {
	return &Mirror{backend: backend}
}

func (m *Mirror) Close() error {
	return m.backend.Close()
}

// PutInvoice stores the invoice and keeps the number, creator and status
// indexes current. The id is removed from the status index it used to be in.
func (m *Mirror) PutInvoice(ctx context.Context, invoice models.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var previous models.Invoice
	found, err := m.getJSON(ctx, fmt.Sprintf(keyInvoice, invoice.Id), &previous)
	if err != nil {
		return err
	}

	if err := m.setJSON(ctx, fmt.Sprintf(keyInvoice, invoice.Id), invoice); err != nil {
		return err
	}

	if found && previous.Status != invoice.Status {
		if err := removeFromIndex(ctx, m, fmt.Sprintf(keyInvoiceStatus, previous.Status), invoice.Id); err != nil {
			return err
		}
	}
	if found && previous.InvoiceNumber != invoice.InvoiceNumber {
		if err := m.backend.Delete(ctx, fmt.Sprintf(keyInvoiceNumber, previous.InvoiceNumber)); err != nil {
			return err
		}
	}

	if err := m.backend.Set(ctx, fmt.Sprintf(keyInvoiceNumber, invoice.InvoiceNumber), []byte(strconv.FormatInt(invoice.Id, 10))); err != nil {
		return err
	}
	if err := addToIndex(ctx, m, fmt.Sprintf(keyInvoiceCreator, invoice.CreatorId), invoice.Id); err != nil {
		return err
	}
	if err := addToIndex(ctx, m, fmt.Sprintf(keyInvoiceStatus, invoice.Status), invoice.Id); err != nil {
		return err
	}
	return addToIndex(ctx, m, keyInvoiceAll, invoice.Id)
}

func (m *Mirror) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	var invoice models.Invoice
	found, err := m.getJSON(ctx, fmt.Sprintf(keyInvoice, id), &invoice)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("invoice %d: %w", id, ErrKeyNotFound)
	}
	return &invoice, nil
}

func (m *Mirror) GetInvoiceIdByNumber(ctx context.Context, invoiceNumber string) (int64, error) {
	raw, err := m.backend.Get(ctx, fmt.Sprintf(keyInvoiceNumber, invoiceNumber))
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt number index for %s: %w", invoiceNumber, err)
	}
	return id, nil
}

// ListInvoiceIds resolves creator and status filters against the indexes,
// newest first. ClientId is not indexed and is ignored here.
func (m *Mirror) ListInvoiceIds(ctx context.Context, filter store.InvoiceFilter) ([]int64, error) {
	var sets [][]int64

	if filter.CreatorId != nil {
		ids, err := readIndex[int64](ctx, m, fmt.Sprintf(keyInvoiceCreator, *filter.CreatorId))
		if err != nil {
			return nil, err
		}
		sets = append(sets, ids)
	}
	if filter.Status != "" {
		ids, err := readIndex[int64](ctx, m, fmt.Sprintf(keyInvoiceStatus, filter.Status))
		if err != nil {
			return nil, err
		}
		sets = append(sets, ids)
	}
	if len(sets) == 0 {
		ids, err := readIndex[int64](ctx, m, keyInvoiceAll)
		if err != nil {
			return nil, err
		}
		sets = append(sets, ids)
	}

	result := sets[0]
	for _, other := range sets[1:] {
		result = intersect(result, other)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] > result[j] })
	return result, nil
}

func (m *Mirror) ListInvoices(ctx context.Context, filter store.InvoiceFilter) ([]models.Invoice, error) {
	ids, err := m.ListInvoiceIds(ctx, filter)
	if err != nil {
		return nil, err
	}

	invoices := make([]models.Invoice, 0, len(ids))
	for _, id := range ids {
		invoice, err := m.GetInvoice(ctx, id)
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				zap.L().Warn("Mirror index points at missing invoice", zap.Int64("invoice_id", id))
				continue
			}
			return nil, err
		}
		if filter.ClientId != nil && (invoice.ClientId == nil || *invoice.ClientId != *filter.ClientId) {
			continue
		}
		invoices = append(invoices, *invoice)
	}
	return invoices, nil
}

func (m *Mirror) PutTransaction(ctx context.Context, tx models.Transaction) error {
	return m.setJSON(ctx, fmt.Sprintf(keyTransaction, tx.Id), tx)
}

func (m *Mirror) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	var tx models.Transaction
	found, err := m.getJSON(ctx, fmt.Sprintf(keyTransaction, id), &tx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("transaction %d: %w", id, ErrKeyNotFound)
	}
	return &tx, nil
}

func (m *Mirror) PutTransfer(ctx context.Context, transfer models.BridgeTransfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.setJSON(ctx, fmt.Sprintf(keyTransfer, transfer.Id), transfer); err != nil {
		return err
	}
	if transfer.UserId != nil {
		if err := addToIndex(ctx, m, fmt.Sprintf(keyTransferUser, *transfer.UserId), transfer.Id); err != nil {
			return err
		}
	}
	return addToIndex(ctx, m, keyTransferAll, transfer.Id)
}

func (m *Mirror) GetTransfer(ctx context.Context, id string) (*models.BridgeTransfer, error) {
	var transfer models.BridgeTransfer
	found, err := m.getJSON(ctx, fmt.Sprintf(keyTransfer, id), &transfer)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("transfer %s: %w", id, ErrKeyNotFound)
	}
	return &transfer, nil
}

// ListTransfers returns the user's transfers, or all of them when userId is nil,
// newest first.
func (m *Mirror) ListTransfers(ctx context.Context, userId *int64) ([]models.BridgeTransfer, error) {
	key := keyTransferAll
	if userId != nil {
		key = fmt.Sprintf(keyTransferUser, *userId)
	}

	ids, err := readIndex[string](ctx, m, key)
	if err != nil {
		return nil, err
	}

	transfers := make([]models.BridgeTransfer, 0, len(ids))
	for _, id := range ids {
		transfer, err := m.GetTransfer(ctx, id)
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				continue
			}
			return nil, err
		}
		transfers = append(transfers, *transfer)
	}
	sort.SliceStable(transfers, func(i, j int) bool {
		return transfers[i].CreatedAt.After(transfers[j].CreatedAt)
	})
	return transfers, nil
}

// Rebuild clears the namespace and repopulates it from src.
func (m *Mirror) Rebuild(ctx context.Context, src Source) (RebuildStats, error) {
	var stats RebuildStats

	zap.L().Info("Rebuilding kv mirror")
	if err := m.backend.Clear(ctx); err != nil {
		return stats, fmt.Errorf("unable to clear mirror: %w", err)
	}

	invoices, err := src.ListInvoices(ctx, store.InvoiceFilter{})
	if err != nil {
		return stats, fmt.Errorf("unable to list invoices: %w", err)
	}
	for _, invoice := range invoices {
		if err := m.PutInvoice(ctx, invoice); err != nil {
			return stats, fmt.Errorf("unable to mirror invoice %d: %w", invoice.Id, err)
		}
		stats.Invoices++
	}

	transactions, err := src.ListTransactions(ctx, store.TransactionFilter{})
	if err != nil {
		return stats, fmt.Errorf("unable to list transactions: %w", err)
	}
	for _, tx := range transactions {
		if err := m.PutTransaction(ctx, tx); err != nil {
			return stats, fmt.Errorf("unable to mirror transaction %d: %w", tx.Id, err)
		}
		stats.Transactions++
	}

	transfers, err := src.ListTransfers(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("unable to list transfers: %w", err)
	}
	for _, transfer := range transfers {
		if err := m.PutTransfer(ctx, transfer); err != nil {
			return stats, fmt.Errorf("unable to mirror transfer %s: %w", transfer.Id, err)
		}
		stats.Transfers++
	}

	zap.L().Info("Kv mirror rebuilt",
		zap.Int("invoices", stats.Invoices),
		zap.Int("transactions", stats.Transactions),
		zap.Int("transfers", stats.Transfers))
	return stats, nil
}

func (m *Mirror) getJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := m.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("corrupt mirror entry %s: %w", key, err)
	}
	return true, nil
}

func (m *Mirror) setJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("unable to encode %s: %w", key, err)
	}
	return m.backend.Set(ctx, key, raw)
}

func readIndex[T comparable](ctx context.Context, m *Mirror, key string) ([]T, error) {
	var ids []T
	if _, err := m.getJSON(ctx, key, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// addToIndex and removeFromIndex must be called with m.mu held.
func addToIndex[T comparable](ctx context.Context, m *Mirror, key string, id T) error {
	ids, err := readIndex[T](ctx, m, key)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	return m.setJSON(ctx, key, append(ids, id))
}

func removeFromIndex[T comparable](ctx context.Context, m *Mirror, key string, id T) error {
	ids, err := readIndex[T](ctx, m, key)
	if err != nil {
		return err
	}

	kept := ids[:0]
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(ids) {
		return nil
	}
	if len(kept) == 0 {
		return m.backend.Delete(ctx, key)
	}
	return m.setJSON(ctx, key, kept)
}

func intersect(a, b []int64) []int64 {
	seen := make(map[int64]struct{}, len(b))
	for _, id := range b {
		seen[id] = struct{}{}
	}
	out := []int64{}
	for _, id := range a {
		if _, ok := seen[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
