package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// PredictionRequest is a user's stake on one outcome of a market.
// ValueSent must equal DeclaredStake plus the fee at the current rate.
type PredictionRequest struct {
	User          common.Address
	MarketID      uint64
	Outcome       domain.Outcome
	DeclaredStake domain.Amount
	ValueSent     domain.Amount
}

// Receipt describes a recorded prediction.
type Receipt struct {
	PositionID uint64        `json:"position_id"`
	NetStake   domain.Amount `json:"net_stake"`
	Fee        domain.Amount `json:"fee"`
}

// QuoteFee returns the fee charged on stake at the current rate and the
// total value a prediction of that stake must send.
func (e *Engine) QuoteFee(stake domain.Amount) (fee, total domain.Amount, err error) {
	fee, err = stake.FeeAt(e.Settings().FeeBps)
	if err != nil {
		return domain.Amount{}, domain.Amount{}, err
	}
	total, err = stake.Add(fee)
	if err != nil {
		return domain.Amount{}, domain.Amount{}, err
	}
	return fee, total, nil
}

// RecordPrediction stakes req.DeclaredStake on req.Outcome and issues a
// position to req.User.
func (e *Engine) RecordPrediction(ctx context.Context, req PredictionRequest) (Receipt, error) {
	if req.User == (common.Address{}) {
		return Receipt{}, domain.ErrInvalidAddress
	}
	if req.DeclaredStake.IsZero() {
		return Receipt{}, domain.ErrZeroStake
	}
	if !req.Outcome.Valid() {
		return Receipt{}, domain.ErrInvalidOutcome
	}

	var rcpt Receipt
	err := e.mutate(ctx, "record_prediction", func(ctx context.Context, s *scope) error {
		m, err := s.tx.GetMarket(ctx, req.MarketID)
		if err != nil {
			return err
		}
		if m.Expired(s.now) {
			return domain.ErrMarketExpired
		}
		if m.Resolved {
			return domain.ErrMarketResolved
		}
		done, err := s.tx.HasPredicted(ctx, m.ID, req.User)
		if err != nil {
			return fmt.Errorf("engine: participation lookup: %w", err)
		}
		if done {
			return domain.ErrAlreadyPredicted
		}

		settings := e.Settings()
		fee, total, err := e.QuoteFee(req.DeclaredStake)
		if err != nil {
			return err
		}
		if !req.ValueSent.Equal(total) {
			return fmt.Errorf("%w: sent %s, want %s", domain.ErrValueMismatch, req.ValueSent, total)
		}
		minStake := m.MinStake
		if minStake.IsZero() {
			minStake = settings.GlobalMinStake
		}
		if req.DeclaredStake.Cmp(minStake) < 0 {
			return fmt.Errorf("%w: %s < %s", domain.ErrStakeBelowMinimum, req.DeclaredStake, minStake)
		}

		side, err := m.TotalStake[req.Outcome].Add(req.DeclaredStake)
		if err != nil {
			return err
		}
		m.TotalStake[req.Outcome] = side
		if err := s.tx.MarkPredicted(ctx, m.ID, req.User); err != nil {
			return err
		}
		if err := s.tx.UpdateMarket(ctx, m); err != nil {
			return fmt.Errorf("engine: update market %d: %w", m.ID, err)
		}
		posID, err := s.tx.Issue(ctx, domain.Position{
			Owner:     req.User,
			MarketID:  m.ID,
			Outcome:   req.Outcome,
			Stake:     req.DeclaredStake,
			CreatedAt: s.now,
		})
		if err != nil {
			return fmt.Errorf("engine: issue position: %w", err)
		}

		if err := s.j.collect(ctx, req.User, req.ValueSent); err != nil {
			return domain.External(domain.ErrCollectFailed, err)
		}
		if err := s.j.pay(ctx, settings.Treasury, fee); err != nil {
			return domain.External(domain.ErrFeeTransferFailed, err)
		}

		rcpt = Receipt{PositionID: posID, NetStake: req.DeclaredStake, Fee: fee}
		s.emit(domain.Event{
			Type:       domain.EventPredictionRecorded,
			MarketID:   m.ID,
			PositionID: posID,
			Actor:      addrPtr(req.User),
			Outcome:    outcomePtr(req.Outcome),
			Amount:     amountPtr(req.DeclaredStake),
			Fee:        amountPtr(fee),
		})
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	e.metrics.PredictionRecorded(req.Outcome, rcpt.NetStake, rcpt.Fee)
	e.logger.InfoContext(ctx, "engine: prediction recorded",
		slog.Uint64("market_id", req.MarketID),
		slog.Uint64("position_id", rcpt.PositionID),
		slog.String("user", req.User.Hex()),
		slog.String("outcome", req.Outcome.String()),
		slog.String("stake", rcpt.NetStake.String()),
		slog.String("fee", rcpt.Fee.String()),
	)
	return rcpt, nil
}
