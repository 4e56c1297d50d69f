package redis

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// PriceCache implements domain.PriceCache with one hash per feed at
// "price:{feed}". Big integers are stored as decimal strings and the update
// time as Unix nanoseconds in "ts".
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache. Entries expire after ttl when ttl is
// positive.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(feed string) string {
	return "price:" + feed
}

// SetPrice stores p as the latest observation for feed.
func (pc *PriceCache) SetPrice(ctx context.Context, feed string, p domain.PriceData) error {
	key := priceKey(feed)
	pipe := pc.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, encodePrice(p))
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", feed, err)
	}
	return nil
}

// GetPrice returns the latest observation for feed, or domain.ErrNotFound.
func (pc *PriceCache) GetPrice(ctx context.Context, feed string) (domain.PriceData, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(feed)).Result()
	if err != nil {
		return domain.PriceData{}, fmt.Errorf("redis: get price %s: %w", feed, err)
	}
	if len(vals) == 0 {
		return domain.PriceData{}, domain.ErrNotFound
	}
	p, err := decodePrice(vals)
	if err != nil {
		return domain.PriceData{}, fmt.Errorf("redis: decode price %s: %w", feed, err)
	}
	return p, nil
}

func encodePrice(p domain.PriceData) map[string]any {
	fields := map[string]any{
		"ts": strconv.FormatInt(p.UpdatedAt.UnixNano(), 10),
	}
	if p.Price != nil {
		fields["price"] = p.Price.String()
	}
	if p.Conf != nil {
		fields["conf"] = p.Conf.String()
	}
	if p.HasExpo {
		fields["expo"] = strconv.FormatInt(int64(p.Expo), 10)
	}
	if p.RoundID != nil {
		fields["round"] = p.RoundID.String()
	}
	if p.AnsweredInRound != nil {
		fields["answered"] = p.AnsweredInRound.String()
	}
	return fields
}

func decodePrice(vals map[string]string) (domain.PriceData, error) {
	var p domain.PriceData
	raw, ok := vals["price"]
	if !ok {
		return p, domain.ErrNotFound
	}
	price, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return p, fmt.Errorf("bad price %q", raw)
	}
	p.Price = price

	ts, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return p, fmt.Errorf("bad ts %q: %w", vals["ts"], err)
	}
	if ts > 0 {
		p.UpdatedAt = time.Unix(0, ts).UTC()
	}

	for field, dst := range map[string]**big.Int{"conf": &p.Conf, "round": &p.RoundID, "answered": &p.AnsweredInRound} {
		s, ok := vals[field]
		if !ok {
			continue
		}
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return p, fmt.Errorf("bad %s %q", field, s)
		}
		*dst = v
	}
	if s, ok := vals["expo"]; ok {
		e, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return p, fmt.Errorf("bad expo %q: %w", s, err)
		}
		p.Expo = int32(e)
		p.HasExpo = true
	}
	return p, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
