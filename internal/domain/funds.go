package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Vault moves value between participants and the engine's custody.
// Any error aborts the calling operation.
type Vault interface {
	// Collect moves amount from an external account into custody.
	Collect(ctx context.Context, from common.Address, amount Amount) error
	// Pay moves amount out of custody to an external account.
	Pay(ctx context.Context, to common.Address, amount Amount) error
}

// Reverser undoes completed vault transfers. Vaults that implement it let the
// engine compensate transfers when a transaction fails to commit afterwards.
type Reverser interface {
	ReverseCollect(ctx context.Context, from common.Address, amount Amount) error
	ReversePay(ctx context.Context, to common.Address, amount Amount) error
}
