// Package funds provides an in-process custody ledger implementing
// domain.Vault. It is the settlement rail for single-node deployments and the
// reference vault for tests; production deployments plug a real rail behind
// the same interface.
package funds

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// Book tracks account balances and the amount held in custody.
type Book struct {
	mu       sync.Mutex
	balances map[common.Address]domain.Amount
	custody  domain.Amount
	logger   *slog.Logger
}

// NewBook creates an empty Book.
func NewBook(logger *slog.Logger) *Book {
	return &Book{
		balances: make(map[common.Address]domain.Amount),
		logger:   logger.With(slog.String("component", "funds")),
	}
}

// Credit adds amount to an account from outside the system.
func (b *Book) Credit(addr common.Address, amount domain.Amount) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	next, err := b.balances[addr].Add(amount)
	if err != nil {
		return fmt.Errorf("funds: credit %s: %w", addr.Hex(), err)
	}
	b.balances[addr] = next
	return nil
}

// Balance returns the balance of addr.
func (b *Book) Balance(addr common.Address) domain.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[addr]
}

// Custody returns the amount currently held by the engine.
func (b *Book) Custody() domain.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.custody
}

// Accounts returns every address with a non-zero balance, sorted.
func (b *Book) Accounts() []common.Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]common.Address, 0, len(b.balances))
	for addr, bal := range b.balances {
		if !bal.IsZero() {
			out = append(out, addr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// Collect moves amount from an account into custody.
func (b *Book) Collect(_ context.Context, from common.Address, amount domain.Amount) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.move(&from, nil, amount)
}

// Pay moves amount from custody to an account.
func (b *Book) Pay(_ context.Context, to common.Address, amount domain.Amount) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.move(nil, &to, amount)
}

// ReverseCollect returns a collected amount to its sender.
func (b *Book) ReverseCollect(_ context.Context, from common.Address, amount domain.Amount) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.move(nil, &from, amount)
}

// ReversePay takes a paid amount back into custody.
func (b *Book) ReversePay(_ context.Context, to common.Address, amount domain.Amount) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.move(&to, nil, amount)
}

// move debits from (custody when nil) and credits to (custody when nil).
// Both sides are computed before either is written.
func (b *Book) move(from, to *common.Address, amount domain.Amount) error {
	if amount.IsZero() {
		return nil
	}

	src := b.custody
	if from != nil {
		src = b.balances[*from]
	}
	newSrc, err := src.Sub(amount)
	if err != nil {
		return fmt.Errorf("funds: insufficient balance (have %s, need %s)", src, amount)
	}

	dst := b.custody
	if to != nil {
		dst = b.balances[*to]
	}
	newDst, err := dst.Add(amount)
	if err != nil {
		return fmt.Errorf("funds: credit overflow: %w", err)
	}

	if from != nil {
		b.balances[*from] = newSrc
	} else {
		b.custody = newSrc
	}
	if to != nil {
		b.balances[*to] = newDst
	} else {
		b.custody = newDst
	}
	return nil
}

var (
	_ domain.Vault    = (*Book)(nil)
	_ domain.Reverser = (*Book)(nil)
)
