package domain

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"
)

func TestAmountFeeAtTruncates(t *testing.T) {
	tests := []struct {
		stake string
		bps   uint32
		want  string
	}{
		{"10000000000000000000", 200, "200000000000000000"},
		{"30000000000000000000", 200, "600000000000000000"},
		{"49", 200, "0"},
		{"50", 200, "1"},
		{"99", 100, "0"},
		{"12345", 10000, "12345"},
		{"12345", 0, "0"},
	}
	for _, tt := range tests {
		got, err := MustAmount(tt.stake).FeeAt(tt.bps)
		if err != nil {
			t.Fatalf("FeeAt(%s, %d): %v", tt.stake, tt.bps, err)
		}
		if got.String() != tt.want {
			t.Errorf("FeeAt(%s, %d) = %s, want %s", tt.stake, tt.bps, got, tt.want)
		}
	}
}

func TestAmountMulDivUsesWideIntermediate(t *testing.T) {
	// (2^255) * 4 / 8 overflows 256 bits before the division.
	big255 := new(big.Int).Lsh(big.NewInt(1), 255)
	a, err := AmountFromBig(big255)
	if err != nil {
		t.Fatal(err)
	}
	got, err := a.MulDiv(NewAmount(4), NewAmount(8))
	if err != nil {
		t.Fatalf("MulDiv: %v", err)
	}
	want := new(big.Int).Rsh(big255, 1)
	if got.Big().Cmp(want) != 0 {
		t.Fatalf("MulDiv = %s, want %s", got, want)
	}
}

func TestAmountMulDivByZero(t *testing.T) {
	if _, err := NewAmount(1).MulDiv(NewAmount(1), Amount{}); !errors.Is(err, ErrInconsistentState) {
		t.Fatalf("err = %v, want ErrInconsistentState", err)
	}
}

func TestAmountAddSubBounds(t *testing.T) {
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	m, err := AmountFromBig(max)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Add(NewAmount(1)); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("Add overflow err = %v", err)
	}
	if _, err := NewAmount(1).Sub(NewAmount(2)); !errors.Is(err, ErrAmountUnderflow) {
		t.Fatalf("Sub underflow err = %v", err)
	}
	diff, err := NewAmount(5).Sub(NewAmount(2))
	if err != nil || diff.String() != "3" {
		t.Fatalf("Sub = %s, %v", diff, err)
	}
}

func TestParseAmountRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "-1", "1.5", "abc"} {
		if _, err := ParseAmount(in); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("ParseAmount(%q) err = %v, want ErrInvalidAmount", in, err)
		}
	}
	if _, err := AmountFromBig(big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("AmountFromBig(-1) err = %v", err)
	}
}

func TestAmountJSON(t *testing.T) {
	var v struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"123456789012345678901234567890","b":42}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A.String() != "123456789012345678901234567890" || v.B.String() != "42" {
		t.Fatalf("decoded %s %s", v.A, v.B)
	}
	out, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"a":"123456789012345678901234567890","b":"42"}` {
		t.Fatalf("marshal = %s", out)
	}
}
