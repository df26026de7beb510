package money

import "testing"

func TestComputeFees(t *testing.T) {
	tests := []struct {
		name       string
		total      int64
		plan       FeePlan
		wantFee    int64
		wantIncome int64
	}{
		{"percent only", 10000, FeePlan{PercentBps: 500}, 500, 9500},
		{"percent plus fixed", 10000, FeePlan{PercentBps: 350, FixedMinor: 300}, 650, 9350},
		{"rounds half up", 1020, FeePlan{PercentBps: 250}, 26, 994},
		{"rounds down below half", 1001, FeePlan{PercentBps: 250}, 25, 976},
		{"fee clamped to total", 100, FeePlan{PercentBps: 0, FixedMinor: 500}, 100, 0},
		{"zero total", 0, FeePlan{PercentBps: 500, FixedMinor: 100}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, income := ComputeFees(tt.total, tt.plan)
			if fee != tt.wantFee || income != tt.wantIncome {
				t.Fatalf("expected fee=%d income=%d, got fee=%d income=%d", tt.wantFee, tt.wantIncome, fee, income)
			}
			if fee+income != tt.total {
				t.Fatalf("expected fee+income to equal total")
			}
		})
	}
}

func TestExponentAndConversions(t *testing.T) {
	if Exponent("mxn") != 2 {
		t.Fatalf("expected MXN exponent 2")
	}
	if Exponent("JPY") != 0 {
		t.Fatalf("expected JPY exponent 0")
	}
	if got := ToMajor(12345, "MXN"); got != 123.45 {
		t.Fatalf("expected 123.45, got %v", got)
	}
	if got := FromMajor(123.45, "MXN"); got != 12345 {
		t.Fatalf("expected 12345, got %d", got)
	}
	if got := FromMajor(1500, "JPY"); got != 1500 {
		t.Fatalf("expected 1500, got %d", got)
	}
	if NormalizeCurrency(" usd ") != "USD" {
		t.Fatalf("expected USD")
	}
}
