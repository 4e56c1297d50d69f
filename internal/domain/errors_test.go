package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestExternalKeepsSentinelAndCause(t *testing.T) {
	cause := errors.New("rpc timeout")
	err := fmt.Errorf("oracle: fetch: %w", External(ErrOracleUnavailable, cause))

	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatal("wrapped error does not match sentinel")
	}
	if !errors.Is(err, cause) {
		t.Fatal("wrapped error lost its cause")
	}
	if KindOf(err) != KindExternal {
		t.Fatalf("KindOf = %s", KindOf(err))
	}
	if CodeOf(err) != "oracle_unavailable" {
		t.Fatalf("CodeOf = %s", CodeOf(err))
	}
}

func TestExternalDoesNotRewrapSameCode(t *testing.T) {
	inner := External(ErrOracleStale, errors.New("old"))
	if got := External(ErrOracleStale, inner); got != inner {
		t.Fatalf("External rewrapped an already classified error: %v", got)
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatal("unclassified error should be internal")
	}
	if KindOf(fmt.Errorf("x: %w", ErrAlreadyPredicted)) != KindConflict {
		t.Fatal("already predicted should be a conflict")
	}
	if !errors.Is(ErrAlreadyResolved, ErrMarketResolved) {
		t.Fatal("already resolved alias mismatch")
	}
}
