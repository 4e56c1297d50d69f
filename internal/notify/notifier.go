// Package notify turns selected engine events into operator alerts on
// Telegram and Discord.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// Sender delivers one alert.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// DefaultEvents are alerted when no explicit list is configured.
var DefaultEvents = []domain.EventType{
	domain.EventMarketResolved,
	domain.EventResolutionFailed,
	domain.EventRewardClaimed,
}

// Notifier implements domain.EventPublisher by formatting allowed events
// and sending them to every sender.
type Notifier struct {
	senders []Sender
	allowed map[domain.EventType]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. Unknown names in events are kept as-is;
// an empty list selects DefaultEvents.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool)
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventType(e)] = true
		}
	}
	if len(allowed) == 0 {
		for _, e := range DefaultEvents {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notify")),
	}
}

// Publish implements domain.EventPublisher.
func (n *Notifier) Publish(ctx context.Context, ev domain.Event) error {
	if !n.allowed[ev.Type] || len(n.senders) == 0 {
		return nil
	}
	title, msg := Format(ev)

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, msg); err != nil {
			n.logger.WarnContext(ctx, "notify: send failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Format renders an event as an alert title and body.
func Format(ev domain.Event) (title, message string) {
	var b strings.Builder
	switch ev.Type {
	case domain.EventMarketResolved:
		title = fmt.Sprintf("Market #%d resolved", ev.MarketID)
		if ev.Outcome != nil {
			fmt.Fprintf(&b, "Winner: %s\n", ev.Outcome)
		}
		if ev.Amount != nil {
			fmt.Fprintf(&b, "Pool: %s\n", ev.Amount)
		}
	case domain.EventResolutionFailed:
		title = fmt.Sprintf("Market #%d could not be resolved", ev.MarketID)
	case domain.EventRewardClaimed:
		title = fmt.Sprintf("Reward claimed on market #%d", ev.MarketID)
		fmt.Fprintf(&b, "Position: %d\n", ev.PositionID)
		if ev.Actor != nil {
			fmt.Fprintf(&b, "Claimant: %s\n", ev.Actor.Hex())
		}
		if ev.Amount != nil {
			fmt.Fprintf(&b, "Payout: %s\n", ev.Amount)
		}
	default:
		title = fmt.Sprintf("%s on market #%d", ev.Type, ev.MarketID)
	}
	if reason := ev.Detail["error"]; reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", reason)
	}
	return title, strings.TrimRight(b.String(), "\n")
}

var _ domain.EventPublisher = (*Notifier)(nil)
