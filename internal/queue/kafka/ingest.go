package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// PriceTick is the wire form of one observation on the price topic. Big
// integers travel as decimal strings.
type PriceTick struct {
	Feed            string `json:"feed"`
	Price           string `json:"price"`
	Conf            string `json:"conf,omitempty"`
	Expo            *int32 `json:"expo,omitempty"`
	PublishTime     int64  `json:"publish_time"`
	RoundID         string `json:"round_id,omitempty"`
	AnsweredInRound string `json:"answered_in_round,omitempty"`
}

// PriceData converts the tick.
func (t PriceTick) PriceData() (domain.PriceData, error) {
	var p domain.PriceData
	if strings.TrimSpace(t.Feed) == "" {
		return p, errors.New("missing feed")
	}
	price, err := parseBig("price", t.Price)
	if err != nil {
		return p, err
	}
	if price == nil {
		return p, errors.New("missing price")
	}
	p.Price = price
	if p.Conf, err = parseBig("conf", t.Conf); err != nil {
		return p, err
	}
	if p.RoundID, err = parseBig("round_id", t.RoundID); err != nil {
		return p, err
	}
	if p.AnsweredInRound, err = parseBig("answered_in_round", t.AnsweredInRound); err != nil {
		return p, err
	}
	if t.Expo != nil {
		p.Expo, p.HasExpo = *t.Expo, true
	}
	if t.PublishTime > 0 {
		p.UpdatedAt = time.Unix(t.PublishTime, 0).UTC()
	}
	return p, nil
}

func parseBig(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("bad %s %q", field, s)
	}
	return v, nil
}

// PriceIngest stores ticks in the price cache, dropping any tick older
// than the cached observation for the same feed.
type PriceIngest struct {
	cache domain.PriceCache
}

// NewPriceIngest creates a PriceIngest writing to cache.
func NewPriceIngest(cache domain.PriceCache) *PriceIngest {
	return &PriceIngest{cache: cache}
}

// Handle decodes and stores one tick.
func (in *PriceIngest) Handle(ctx context.Context, value []byte) error {
	var tick PriceTick
	if err := json.Unmarshal(value, &tick); err != nil {
		return fmt.Errorf("decode price tick: %w", err)
	}
	p, err := tick.PriceData()
	if err != nil {
		return fmt.Errorf("price tick: %w", err)
	}

	cur, err := in.cache.GetPrice(ctx, tick.Feed)
	switch {
	case err == nil:
		if p.UpdatedAt.Before(cur.UpdatedAt) {
			return nil
		}
	case errors.Is(err, domain.ErrNotFound):
	default:
		return fmt.Errorf("read cached price %s: %w", tick.Feed, err)
	}
	return in.cache.SetPrice(ctx, tick.Feed, p)
}

// ExpiryHandler forwards expiry notices to notify.
func ExpiryHandler(notify func(id uint64)) Handler {
	return func(_ context.Context, value []byte) error {
		var n domain.ExpiryNotice
		if err := json.Unmarshal(value, &n); err != nil {
			return fmt.Errorf("decode expiry notice: %w", err)
		}
		if n.MarketID == 0 {
			return errors.New("expiry notice without market id")
		}
		notify(n.MarketID)
		return nil
	}
}
