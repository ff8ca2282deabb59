package x402

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TxStatus is the lifecycle state of a payment transaction.
type TxStatus string

const (
	TxStatusPending  TxStatus = "pending"
	TxStatusVerified TxStatus = "verified"
	TxStatusSettled  TxStatus = "settled"
	TxStatusFailed   TxStatus = "failed"
)

// ErrTxNotFound is returned when a transaction id is unknown.
var ErrTxNotFound = errors.New("transaction not found")

// ErrTxTransition is returned when a status change would move a transaction
// backwards or out of a terminal state.
var ErrTxTransition = errors.New("invalid transaction status transition")

// Transaction is one payment attempt recorded by the gate. The ledger is
// process-local; records do not survive a restart.
type Transaction struct {
	ID                  string    `json:"id"`
	WalletAddress       string    `json:"walletAddress"`
	Amount              string    `json:"amount"`
	Asset               string    `json:"asset"`
	Network             string    `json:"network"`
	Resource            string    `json:"resource"`
	Status              TxStatus  `json:"status"`
	SettlementSignature string    `json:"settlementSignature,omitempty"`
	ErrorMessage        string    `json:"errorMessage,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Ledger records payment transactions in memory.
type Ledger struct {
	mu  sync.RWMutex
	txs map[string]*Transaction
	now func() time.Time
}

// NewLedger creates an empty transaction ledger.
func NewLedger() *Ledger {
	return &Ledger{
		txs: make(map[string]*Transaction),
		now: time.Now,
	}
}

// Record creates a pending transaction for a payment attempt.
func (l *Ledger) Record(ctx context.Context, wallet, amount, asset, network, resource string) (*Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	tx := &Transaction{
		ID:            "x402-" + uuid.New().String(),
		WalletAddress: wallet,
		Amount:        amount,
		Asset:         asset,
		Network:       network,
		Resource:      resource,
		Status:        TxStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	l.txs[tx.ID] = tx
	copied := *tx
	return &copied, nil
}

// Get returns the transaction with the given id.
func (l *Ledger) Get(ctx context.Context, id string) (*Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tx, ok := l.txs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrTxNotFound)
	}
	copied := *tx
	return &copied, nil
}

// ListByWallet returns the wallet's transactions, newest first. Matching is
// exact string equality on the wallet address.
func (l *Ledger) ListByWallet(ctx context.Context, wallet string) ([]*Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	txs := make([]*Transaction, 0)
	for _, tx := range l.txs {
		if tx.WalletAddress == wallet {
			copied := *tx
			txs = append(txs, &copied)
		}
	}
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].ID > txs[j].ID
		}
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
	return txs, nil
}

// MarkVerified advances a pending transaction to verified.
func (l *Ledger) MarkVerified(ctx context.Context, id string) (*Transaction, error) {
	return l.transition(id, TxStatusVerified, func(tx *Transaction) {})
}

// MarkSettled advances a verified transaction to settled and records the
// on-chain signature.
func (l *Ledger) MarkSettled(ctx context.Context, id, signature string) (*Transaction, error) {
	return l.transition(id, TxStatusSettled, func(tx *Transaction) {
		tx.SettlementSignature = signature
	})
}

// MarkFailed moves a transaction to failed from any non-terminal state.
func (l *Ledger) MarkFailed(ctx context.Context, id, reason string) (*Transaction, error) {
	return l.transition(id, TxStatusFailed, func(tx *Transaction) {
		tx.ErrorMessage = reason
	})
}

func (l *Ledger) transition(id string, to TxStatus, apply func(*Transaction)) (*Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, ok := l.txs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrTxNotFound)
	}
	if !validTxTransition(tx.Status, to) {
		return nil, fmt.Errorf("%s: %s → %s: %w", id, tx.Status, to, ErrTxTransition)
	}

	tx.Status = to
	apply(tx)
	tx.UpdatedAt = l.now()
	copied := *tx
	return &copied, nil
}

// Transactions only move forward: pending → verified → settled, with failed
// reachable from any non-terminal state.
func validTxTransition(from, to TxStatus) bool {
	switch to {
	case TxStatusVerified:
		return from == TxStatusPending
	case TxStatusSettled:
		return from == TxStatusVerified
	case TxStatusFailed:
		return from == TxStatusPending || from == TxStatusVerified
	default:
		return false
	}
}
