package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
	"github.com/alanyoungcy/convictionmarket/internal/rewards"
)

// Claim retires a winning position and pays its reward to the owner.
// The retirement and the payment commit together or not at all.
func (e *Engine) Claim(ctx context.Context, grant *domain.Grant, positionID uint64, claimant common.Address) (domain.Amount, error) {
	if err := e.requireGrant(grant, domain.RoleDistributor); err != nil {
		return domain.Amount{}, err
	}

	var (
		payout domain.Amount
		pos    domain.Position
	)
	err := e.mutate(ctx, "claim", func(ctx context.Context, s *scope) error {
		var err error
		pos, err = s.tx.Describe(ctx, positionID)
		if err != nil {
			return err
		}
		if pos.Owner != claimant {
			return domain.ErrNotPositionOwner
		}
		m, err := s.tx.GetMarket(ctx, pos.MarketID)
		if err != nil {
			return err
		}
		payout, err = settle(m, pos)
		if err != nil {
			return err
		}

		if err := s.tx.Retire(ctx, pos.ID); err != nil {
			return fmt.Errorf("engine: retire position %d: %w", pos.ID, err)
		}
		if err := s.j.pay(ctx, pos.Owner, payout); err != nil {
			return domain.External(domain.ErrRewardTransferFailed, err)
		}

		s.emit(domain.Event{
			Type:       domain.EventRewardClaimed,
			MarketID:   m.ID,
			PositionID: pos.ID,
			Actor:      addrPtr(pos.Owner),
			Outcome:    outcomePtr(pos.Outcome),
			Amount:     amountPtr(payout),
		})
		return nil
	})
	if err != nil {
		return domain.Amount{}, err
	}

	e.metrics.RewardClaimed(payout)
	e.logger.InfoContext(ctx, "engine: reward claimed",
		slog.Uint64("market_id", pos.MarketID),
		slog.Uint64("position_id", pos.ID),
		slog.String("owner", pos.Owner.Hex()),
		slog.String("payout", payout.String()),
	)
	return payout, nil
}

// PreviewPayout returns what Claim would pay for positionID right now.
func (e *Engine) PreviewPayout(ctx context.Context, positionID uint64) (domain.Amount, error) {
	pos, err := e.store.Describe(ctx, positionID)
	if err != nil {
		return domain.Amount{}, err
	}
	m, err := e.store.GetMarket(ctx, pos.MarketID)
	if err != nil {
		return domain.Amount{}, err
	}
	return settle(m, pos)
}

func settle(m domain.Market, pos domain.Position) (domain.Amount, error) {
	winner, ok := m.Winner()
	if !ok {
		return domain.Amount{}, domain.ErrMarketNotResolved
	}
	if pos.Outcome != winner {
		return domain.Amount{}, domain.ErrNotWinningPosition
	}
	if pos.Stake.IsZero() {
		return domain.Amount{}, domain.ErrZeroStake
	}
	return rewards.Payout(pos.Stake, m.TotalStake[winner], m.TotalStake[winner.Opposite()])
}

// TransferPosition hands an unclaimed position to a new owner.
func (e *Engine) TransferPosition(ctx context.Context, positionID uint64, from, to common.Address) error {
	if to == (common.Address{}) {
		return domain.ErrInvalidAddress
	}
	return e.mutate(ctx, "transfer_position", func(ctx context.Context, s *scope) error {
		pos, err := s.tx.Describe(ctx, positionID)
		if err != nil {
			return err
		}
		if pos.Owner != from {
			return domain.ErrNotPositionOwner
		}
		if from == to {
			return nil
		}
		if err := s.tx.Transfer(ctx, positionID, to); err != nil {
			return fmt.Errorf("engine: transfer position %d: %w", positionID, err)
		}
		s.emit(domain.Event{
			Type:       domain.EventPositionTransferred,
			MarketID:   pos.MarketID,
			PositionID: pos.ID,
			Actor:      addrPtr(from),
			Detail:     map[string]string{"to": to.Hex()},
		})
		return nil
	})
}
