package engine

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

type transferKind int

const (
	transferCollect transferKind = iota
	transferPay
)

type transfer struct {
	kind   transferKind
	addr   common.Address
	amount domain.Amount
}

// journal records completed vault transfers of one operation so they can be
// reversed when the operation does not commit.
type journal struct {
	vault   domain.Vault
	entries []transfer
}

func (j *journal) collect(ctx context.Context, from common.Address, amount domain.Amount) error {
	if amount.IsZero() {
		return nil
	}
	if err := j.vault.Collect(ctx, from, amount); err != nil {
		return err
	}
	j.entries = append(j.entries, transfer{kind: transferCollect, addr: from, amount: amount})
	return nil
}

func (j *journal) pay(ctx context.Context, to common.Address, amount domain.Amount) error {
	if amount.IsZero() {
		return nil
	}
	if err := j.vault.Pay(ctx, to, amount); err != nil {
		return err
	}
	j.entries = append(j.entries, transfer{kind: transferPay, addr: to, amount: amount})
	return nil
}

// compensate reverses recorded transfers newest first.
func (j *journal) compensate(ctx context.Context, logger *slog.Logger) {
	if len(j.entries) == 0 {
		return
	}
	rev, ok := j.vault.(domain.Reverser)
	if !ok {
		logger.ErrorContext(ctx, "engine: vault cannot reverse transfers of a failed operation",
			slog.Int("transfers", len(j.entries)),
		)
		return
	}
	for i := len(j.entries) - 1; i >= 0; i-- {
		t := j.entries[i]
		var err error
		switch t.kind {
		case transferCollect:
			err = rev.ReverseCollect(ctx, t.addr, t.amount)
		case transferPay:
			err = rev.ReversePay(ctx, t.addr, t.amount)
		}
		if err != nil {
			logger.ErrorContext(ctx, "engine: reverse transfer failed",
				slog.String("address", t.addr.Hex()),
				slog.String("amount", t.amount.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	j.entries = nil
}
