package fees

import (
	"errors"
	"math/big"
	"testing"
)

func mustBig(t *testing.T, v string) *big.Int {
	t.Helper()
	out, ok := new(big.Int).SetString(v, 10)
	if !ok {
		t.Fatalf("invalid big int %q", v)
	}
	return out
}

func TestValidateRate(t *testing.T) {
	for _, bps := range []uint32{0, 1, 250, 999, 1000} {
		if err := ValidateRate(bps); err != nil {
			t.Fatalf("rate %d: unexpected error %v", bps, err)
		}
	}
	for _, bps := range []uint32{1001, 5000, 10_000, ^uint32(0)} {
		err := ValidateRate(bps)
		if !errors.Is(err, ErrFeeTooHigh) {
			t.Fatalf("rate %d: expected ErrFeeTooHigh, got %v", bps, err)
		}
	}
}

func TestApplyFloorsFee(t *testing.T) {
	tests := []struct {
		name  string
		gross string
		bps   uint32
		fee   string
		net   string
	}{
		{name: "one ether at 250bps", gross: "1000000000000000000", bps: 250, fee: "25000000000000000", net: "975000000000000000"},
		{name: "rounds down", gross: "399", bps: 250, fee: "9", net: "390"},
		{name: "dust below one unit", gross: "39", bps: 250, fee: "0", net: "39"},
		{name: "zero rate", gross: "1000", bps: 0, fee: "0", net: "1000"},
		{name: "max rate", gross: "12345", bps: MaxPlatformFeeBps, fee: "1234", net: "11111"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gross := mustBig(t, tc.gross)
			res := Apply(ApplyInput{Gross: gross, RateBps: tc.bps})
			if res.Fee.Cmp(mustBig(t, tc.fee)) != 0 {
				t.Fatalf("fee: want %s got %s", tc.fee, res.Fee)
			}
			if res.Net.Cmp(mustBig(t, tc.net)) != 0 {
				t.Fatalf("net: want %s got %s", tc.net, res.Net)
			}
			sum := new(big.Int).Add(res.Fee, res.Net)
			if sum.Cmp(gross) != 0 {
				t.Fatalf("fee+net %s != gross %s", sum, gross)
			}
		})
	}
}

func TestApplyDoesNotAliasInput(t *testing.T) {
	gross := big.NewInt(10_000)
	res := Apply(ApplyInput{Gross: gross, RateBps: 100})
	res.Net.SetInt64(0)
	if gross.Int64() != 10_000 {
		t.Fatalf("input mutated: %s", gross)
	}
}

func TestApplyNilAndNonPositive(t *testing.T) {
	res := Apply(ApplyInput{RateBps: 500})
	if res.Fee.Sign() != 0 || res.Net.Sign() != 0 {
		t.Fatalf("expected zero split for nil gross, got fee=%s net=%s", res.Fee, res.Net)
	}
}
