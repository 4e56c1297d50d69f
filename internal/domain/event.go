package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType names a committed state change.
type EventType string

const (
	EventMarketCreated       EventType = "market_created"
	EventPredictionRecorded  EventType = "prediction_recorded"
	EventMarketResolved      EventType = "market_resolved"
	EventRewardClaimed       EventType = "reward_claimed"
	EventPositionTransferred EventType = "position_transferred"
	EventOracleRegistered    EventType = "oracle_registered"
	EventSettingsUpdated     EventType = "settings_updated"
	EventResolutionFailed    EventType = "resolution_failed"
)

// Event describes a committed state change. Events are emitted only after
// the change is durable.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	MarketID   uint64            `json:"market_id,omitempty"`
	PositionID uint64            `json:"position_id,omitempty"`
	Actor      *common.Address   `json:"actor,omitempty"`
	Outcome    *Outcome          `json:"outcome,omitempty"`
	Amount     *Amount           `json:"amount,omitempty"`
	Fee        *Amount           `json:"fee,omitempty"`
	Detail     map[string]string `json:"detail,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// EventPublisher delivers events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// ExpiryNotice is the payload of an externally emitted "market expired"
// notification.
type ExpiryNotice struct {
	MarketID  uint64    `json:"market_id"`
	ExpiredAt time.Time `json:"expired_at"`
}
