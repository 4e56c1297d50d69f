package oracle

import (
	"bytes"
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

type fakeAggregator struct {
	t         *testing.T
	c         *Chainlink
	roundID   int64
	answer    int64
	updatedAt int64
	answered  int64
	decimals  uint8
}

func (f *fakeAggregator) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	latest := f.c.abi.Methods["latestRoundData"]
	if bytes.HasPrefix(msg.Data, latest.ID) {
		return latest.Outputs.Pack(
			big.NewInt(f.roundID),
			big.NewInt(f.answer),
			big.NewInt(f.updatedAt),
			big.NewInt(f.updatedAt),
			big.NewInt(f.answered),
		)
	}
	return f.c.abi.Methods["decimals"].Outputs.Pack(f.decimals)
}

func TestChainlinkLatestPrice(t *testing.T) {
	updated := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	agg := &fakeAggregator{t: t, roundID: 42, answer: 250000000000, updatedAt: updated.Unix(), answered: 42, decimals: 8}
	c, err := NewChainlink(agg)
	if err != nil {
		t.Fatal(err)
	}
	agg.c = c

	data, err := c.LatestPrice(context.Background(), domain.OracleRegistration{
		Feed: "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419",
	})
	if err != nil {
		t.Fatal(err)
	}
	if data.Price.Cmp(big.NewInt(250000000000)) != 0 {
		t.Fatalf("price = %s", data.Price)
	}
	if !data.UpdatedAt.Equal(updated) {
		t.Fatalf("updated at = %s, want %s", data.UpdatedAt, updated)
	}
	if data.RoundID.Int64() != 42 || data.AnsweredInRound.Int64() != 42 {
		t.Fatalf("rounds = %s/%s", data.RoundID, data.AnsweredInRound)
	}
	if !data.HasExpo || data.Expo != -8 {
		t.Fatalf("expo = %d (%v), want -8", data.Expo, data.HasExpo)
	}
}

func TestChainlinkRejectsNonAddressFeed(t *testing.T) {
	c, err := NewChainlink(&fakeAggregator{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.LatestPrice(context.Background(), domain.OracleRegistration{Feed: "ETH/USD"}); err == nil {
		t.Fatal("expected error for non-address feed")
	}
}
