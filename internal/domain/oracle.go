package domain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Provider names a price source implementation.
type Provider string

const (
	ProviderChainlink Provider = "chainlink"
	ProviderPyth      Provider = "pyth"
	ProviderCache     Provider = "cache"
)

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case ProviderChainlink, ProviderPyth, ProviderCache:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidProvider, s)
	}
}

// OracleRegistration binds a market to the feed that resolves it.
type OracleRegistration struct {
	MarketID     uint64
	Provider     Provider
	Feed         string
	Threshold    Amount
	ExpectedExpo *int32
	RegisteredAt time.Time
}

// PriceData is a single price observation. RoundID and AnsweredInRound are
// nil for providers without round semantics; HasExpo is false for providers
// that report raw integers.
type PriceData struct {
	Price           *big.Int
	Conf            *big.Int
	Expo            int32
	HasExpo         bool
	UpdatedAt       time.Time
	RoundID         *big.Int
	AnsweredInRound *big.Int
}

// PriceSource fetches the latest observation for a registered feed.
type PriceSource interface {
	LatestPrice(ctx context.Context, reg OracleRegistration) (PriceData, error)
}
