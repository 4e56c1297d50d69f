package domain

import (
	"fmt"
	"strings"
)

// Outcome is one of the two mutually exclusive resolutions of a market.
type Outcome uint8

const (
	OutcomeBearish Outcome = 0
	OutcomeBullish Outcome = 1
)

// Valid reports whether o is one of the two defined outcomes.
func (o Outcome) Valid() bool {
	return o == OutcomeBearish || o == OutcomeBullish
}

// Opposite returns the other outcome.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeBullish {
		return OutcomeBearish
	}
	return OutcomeBullish
}

func (o Outcome) String() string {
	switch o {
	case OutcomeBearish:
		return "bearish"
	case OutcomeBullish:
		return "bullish"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// ParseOutcome accepts "bearish"/"bullish" (any case) or the numeric forms
// "0"/"1".
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bearish", "0":
		return OutcomeBearish, nil
	case "bullish", "1":
		return OutcomeBullish, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOutcome, uint8(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	parsed, err := ParseOutcome(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
