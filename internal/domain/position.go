package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Position is the transferable receipt for one prediction. MarketID, Outcome
// and Stake never change after issue; only Owner moves on transfer.
type Position struct {
	ID        uint64
	Owner     common.Address
	MarketID  uint64
	Outcome   Outcome
	Stake     Amount
	CreatedAt time.Time
}
