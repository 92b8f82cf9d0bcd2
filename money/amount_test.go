package money

import "testing"

func TestAddOverflow(t *testing.T) {
	a := Amount{}
	a.v.Set(MaxMoney)
	one := MustAmount(1)
	if _, err := a.Add(one); err == nil {
		t.Fatalf("expected ArithmeticOverflow, got nil")
	} else if !ErrArithmeticOverflow.Is(err) {
		t.Fatalf("expected ArithmeticOverflow code, got %v", err)
	}
}

func TestSubInsufficientFunds(t *testing.T) {
	a := MustAmount(100)
	b := MustAmount(200)
	if _, err := a.Sub(b); err == nil {
		t.Fatalf("expected InsufficientFunds, got nil")
	} else if !ErrInsufficientFunds.Is(err) {
		t.Fatalf("expected InsufficientFunds code, got %v", err)
	}
}

func TestAddSubRoundTrip(t *testing.T) {
	a := MustAmount(1_000_000)
	b := MustAmount(400_000)
	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	back, err := sum.Sub(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back.Cmp(a) != 0 {
		t.Fatalf("round trip mismatch: got %s want %s", back, a)
	}
}

func TestDivCeil(t *testing.T) {
	cases := []struct {
		amt, den int64
		want     int64
	}{
		{1000, 1000, 1},
		{1001, 1000, 2},
		{999, 1000, 1},
		{0, 1000, 0},
	}
	for _, c := range cases {
		got := MustAmount(c.amt).DivCeil(c.den)
		if got.Int64() != c.want {
			t.Fatalf("DivCeil(%d,%d) = %d, want %d", c.amt, c.den, got.Int64(), c.want)
		}
	}
}

func TestFeeBoundary(t *testing.T) {
	if err := ValidateFeeRate(0); err == nil {
		t.Fatalf("fee_per_kb = 0 should be rejected")
	}
	if err := ValidateFeeRate(MinFeePerKB - 1); err == nil {
		t.Fatalf("fee below MinFeePerKB should be rejected")
	}
	if err := ValidateFeeRate(MinFeePerKB); err != nil {
		t.Fatalf("fee at MinFeePerKB should be accepted: %v", err)
	}
}

func TestDustBoundary(t *testing.T) {
	one := MustAmount(1)
	atMin := MinOutputAmount
	belowMin, err := atMin.Sub(one)
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if err := CheckOutputAmount(atMin, false); err != nil {
		t.Fatalf("exact MinOutputAmount should be accepted: %v", err)
	}
	if err := CheckOutputAmount(belowMin, false); err == nil {
		t.Fatalf("one sat below MinOutputAmount should be DustOutput")
	} else if !ErrDustOutput.Is(err) {
		t.Fatalf("wrong error code: %v", err)
	}
}

func TestSizeBoundary(t *testing.T) {
	if err := CheckSize(TxMaxSize); err != nil {
		t.Fatalf("exactly TxMaxSize should be accepted: %v", err)
	}
	if err := CheckSize(TxMaxSize + 1); err == nil {
		t.Fatalf("one byte over TxMaxSize should be TxTooLarge")
	} else if !ErrTxTooLarge.Is(err) {
		t.Fatalf("wrong error code: %v", err)
	}
}
