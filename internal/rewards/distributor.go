package rewards

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// Settler is the part of the engine the distributor drives.
type Settler interface {
	Claim(ctx context.Context, grant *domain.Grant, positionID uint64, claimant common.Address) (domain.Amount, error)
	PreviewPayout(ctx context.Context, positionID uint64) (domain.Amount, error)
}

// Distributor holds the distributor grant and pays winning positions on
// behalf of their owners.
type Distributor struct {
	settler Settler
	grant   *domain.Grant
	logger  *slog.Logger
}

// NewDistributor creates a Distributor using grant for every claim.
func NewDistributor(settler Settler, grant *domain.Grant, logger *slog.Logger) *Distributor {
	return &Distributor{
		settler: settler,
		grant:   grant,
		logger:  logger.With(slog.String("component", "rewards")),
	}
}

// Claim pays out positionID to its owner. claimant must own the position.
func (d *Distributor) Claim(ctx context.Context, claimant common.Address, positionID uint64) (domain.Amount, error) {
	payout, err := d.settler.Claim(ctx, d.grant, positionID, claimant)
	if err != nil {
		d.logger.WarnContext(ctx, "rewards: claim rejected",
			slog.Uint64("position_id", positionID),
			slog.String("claimant", claimant.Hex()),
			slog.String("code", domain.CodeOf(err)),
			slog.String("error", err.Error()),
		)
		return domain.Amount{}, err
	}
	d.logger.InfoContext(ctx, "rewards: claim paid",
		slog.Uint64("position_id", positionID),
		slog.String("claimant", claimant.Hex()),
		slog.String("payout", payout.String()),
	)
	return payout, nil
}

// Preview returns the payout positionID would receive if claimed now.
func (d *Distributor) Preview(ctx context.Context, positionID uint64) (domain.Amount, error) {
	return d.settler.PreviewPayout(ctx, positionID)
}
