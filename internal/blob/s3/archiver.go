package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// Archives above this size go through the multipart uploader.
const multipartThreshold = 8 << 20

// SettlementSource lists resolved markets and their outstanding positions.
type SettlementSource interface {
	ResolvedMarkets(ctx context.Context, since, until time.Time, limit int) ([]domain.Market, error)
	ListPositionsByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Position, error)
}

// SettlementRecord is the archived form of one resolved market.
type SettlementRecord struct {
	MarketID       uint64             `json:"market_id"`
	Name           string             `json:"name"`
	AssetSymbol    string             `json:"asset_symbol"`
	Feed           string             `json:"feed"`
	Threshold      domain.Amount      `json:"threshold"`
	ExpiresAt      time.Time          `json:"expires_at"`
	ResolvedAt     time.Time          `json:"resolved_at"`
	WinningOutcome domain.Outcome     `json:"winning_outcome"`
	BearishStake   domain.Amount      `json:"bearish_stake"`
	BullishStake   domain.Amount      `json:"bullish_stake"`
	Unclaimed      []ArchivedPosition `json:"unclaimed"`
	ArchivedAt     time.Time          `json:"archived_at"`
}

// ArchivedPosition is a position still outstanding at archive time.
type ArchivedPosition struct {
	ID      uint64         `json:"id"`
	Owner   common.Address `json:"owner"`
	Outcome domain.Outcome `json:"outcome"`
	Stake   domain.Amount  `json:"stake"`
}

// SettlementArchiver implements domain.SettlementArchiver. Each market is
// written once to {prefix}/YYYY/MM/DD/market-{id}.json keyed by its
// resolution date; existing objects are left alone.
type SettlementArchiver struct {
	src    SettlementSource
	writer domain.BlobWriter
	lister domain.BlobLister
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

// NewSettlementArchiver creates an archiver writing under prefix.
func NewSettlementArchiver(src SettlementSource, w domain.BlobWriter, l domain.BlobLister, prefix string, logger *slog.Logger) *SettlementArchiver {
	if prefix == "" {
		prefix = "settlements"
	}
	return &SettlementArchiver{
		src:    src,
		writer: w,
		lister: l,
		prefix: prefix,
		now:    time.Now,
		logger: logger.With(slog.String("component", "archive")),
	}
}

// ArchiveResolved exports markets resolved in [since, until) and returns
// how many new objects were written.
func (a *SettlementArchiver) ArchiveResolved(ctx context.Context, since, until time.Time) (int, error) {
	markets, err := a.src.ResolvedMarkets(ctx, since, until, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list resolved: %w", err)
	}

	// One listing per resolution day, shared by every market on that day.
	days := make(map[string]map[string]bool)
	written := 0
	var errs []error
	for _, m := range markets {
		ok, err := a.archiveOne(ctx, m, days)
		if err != nil {
			a.logger.WarnContext(ctx, "archive: market failed",
				slog.Uint64("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		if ok {
			written++
		}
	}

	a.logger.InfoContext(ctx, "archive: run complete",
		slog.Int("resolved", len(markets)),
		slog.Int("written", written),
	)
	return written, errors.Join(errs...)
}

func (a *SettlementArchiver) archiveOne(ctx context.Context, m domain.Market, days map[string]map[string]bool) (bool, error) {
	if m.ResolvedAt == nil {
		return false, fmt.Errorf("market %d has no resolution time", m.ID)
	}
	key := SettlementKey(a.prefix, m.ID, *m.ResolvedAt)
	day := path.Dir(key) + "/"

	stored, ok := days[day]
	if !ok {
		infos, err := a.lister.List(ctx, day)
		if err != nil {
			return false, err
		}
		stored = make(map[string]bool, len(infos))
		for _, info := range infos {
			stored[info.Path] = true
		}
		days[day] = stored
	}
	if stored[key] {
		return false, nil
	}

	positions, err := a.src.ListPositionsByMarket(ctx, m.ID, domain.ListOpts{})
	if err != nil {
		return false, fmt.Errorf("positions for market %d: %w", m.ID, err)
	}

	body, err := json.Marshal(a.record(m, positions))
	if err != nil {
		return false, fmt.Errorf("marshal market %d: %w", m.ID, err)
	}
	if len(body) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, key, bytes.NewReader(body), minPartSize)
	} else {
		err = a.writer.Put(ctx, key, bytes.NewReader(body), "application/json")
	}
	if err != nil {
		return false, err
	}
	stored[key] = true
	return true, nil
}

func (a *SettlementArchiver) record(m domain.Market, positions []domain.Position) SettlementRecord {
	rec := SettlementRecord{
		MarketID:       m.ID,
		Name:           m.Name,
		AssetSymbol:    m.AssetSymbol,
		Feed:           m.Feed,
		Threshold:      m.Threshold,
		ExpiresAt:      m.ExpiresAt,
		ResolvedAt:     *m.ResolvedAt,
		WinningOutcome: m.WinningOutcome,
		BearishStake:   m.TotalStake[domain.OutcomeBearish],
		BullishStake:   m.TotalStake[domain.OutcomeBullish],
		Unclaimed:      make([]ArchivedPosition, 0, len(positions)),
		ArchivedAt:     a.now().UTC(),
	}
	for _, p := range positions {
		rec.Unclaimed = append(rec.Unclaimed, ArchivedPosition{
			ID: p.ID, Owner: p.Owner, Outcome: p.Outcome, Stake: p.Stake,
		})
	}
	return rec
}

// SettlementKey returns the object key for a market resolved at t.
func SettlementKey(prefix string, marketID uint64, t time.Time) string {
	return fmt.Sprintf("%s/%s/market-%d.json", prefix, t.UTC().Format("2006/01/02"), marketID)
}

var _ domain.SettlementArchiver = (*SettlementArchiver)(nil)
