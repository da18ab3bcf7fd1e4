package game

import "testing"

func TestValidateName(t *testing.T) {
	valid := []string{"Iron Wolves", "The 7th Lantern", "Ash-and-Ember", "O'Brien Co"}
	for _, s := range valid {
		if err := ValidateName(s); err != nil {
			t.Fatalf("expected name %q to be valid: %v", s, err)
		}
	}

	invalid := []string{"", "x", " -dash first", "semi;colon", "this name is far too long to fit on a banner"}
	for _, s := range invalid {
		if err := ValidateName(s); err == nil {
			t.Fatalf("expected name %q to fail", s)
		}
	}
}

func TestTrainingGain(t *testing.T) {
	tests := []struct {
		cost int64
		want int
	}{
		{cost: 1, want: 1},
		{cost: 99, want: 1},
		{cost: 100, want: 1},
		{cost: 250, want: 2},
		{cost: 1000, want: 10},
	}
	for _, tc := range tests {
		if got := TrainingGain(tc.cost); got != tc.want {
			t.Fatalf("cost=%d got=%d want=%d", tc.cost, got, tc.want)
		}
	}
}

func TestQuarterlyInterest(t *testing.T) {
	tests := []struct {
		balance int64
		rate    float64
		want    int64
	}{
		{balance: 10000, rate: 0.05, want: 125},
		{balance: 9625, rate: 0.05, want: 120},
		{balance: 0, rate: 0.05, want: 0},
		{balance: 10000, rate: 0, want: 0},
		{balance: 30, rate: 0.10, want: 1},
	}
	for _, tc := range tests {
		if got := QuarterlyInterest(tc.balance, tc.rate); got != tc.want {
			t.Fatalf("balance=%d rate=%v got=%d want=%d", tc.balance, tc.rate, got, tc.want)
		}
	}
}

func TestFailurePenaltyTruncates(t *testing.T) {
	tests := map[int]int{0: 0, 1: 0, 15: -7, 20: -10, 25: -12}
	for impact, want := range tests {
		if got := FailurePenalty(impact); got != want {
			t.Fatalf("impact=%d got=%d want=%d", impact, got, want)
		}
	}
}

func TestQuarterForDay(t *testing.T) {
	tests := []struct {
		day, qlen, want int
	}{
		{day: 1, qlen: 90, want: 1},
		{day: 90, qlen: 90, want: 1},
		{day: 91, qlen: 90, want: 2},
		{day: 181, qlen: 90, want: 3},
		{day: 0, qlen: 90, want: 1},
		{day: 5, qlen: 0, want: 1},
		{day: 4, qlen: 3, want: 2},
	}
	for _, tc := range tests {
		if got := QuarterForDay(tc.day, tc.qlen); got != tc.want {
			t.Fatalf("day=%d qlen=%d got=%d want=%d", tc.day, tc.qlen, got, tc.want)
		}
	}
}

func TestClamps(t *testing.T) {
	if ClampStat(0) != StatMin || ClampStat(25) != StatMax || ClampStat(7) != 7 {
		t.Fatalf("stat clamp broken")
	}
	if ClampLoyalty(-5) != LoyaltyMin || ClampLoyalty(140) != LoyaltyMax {
		t.Fatalf("loyalty clamp broken")
	}
	if ClampReputation(-1) != ReputationMin || ClampReputation(101) != ReputationMax {
		t.Fatalf("reputation clamp broken")
	}
}
