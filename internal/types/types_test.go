package types

import (
	"math"
	"testing"
)

func TestMoneyFromUnits(t *testing.T) {
	tests := []struct {
		units float64
		want  int64
	}{
		{8.5, 850},
		{12.75, 1275},
		{0, 0},
		{7.999, 800},
	}
	for _, tt := range tests {
		got := MoneyFromUnits(tt.units, "USD")
		if got.Amount != tt.want {
			t.Errorf("MoneyFromUnits(%v) = %d, want %d", tt.units, got.Amount, tt.want)
		}
		if got.Currency != "USD" {
			t.Errorf("currency = %q", got.Currency)
		}
	}
	if u := (Money{Amount: 850}).Units(); u != 8.5 {
		t.Errorf("Units() = %v, want 8.5", u)
	}
}

func TestPointValid(t *testing.T) {
	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"origin", Point{0, 0}, true},
		{"new york", Point{40.7128, -74.0060}, true},
		{"nan lat", Point{math.NaN(), 1}, false},
		{"inf lng", Point{1, math.Inf(1)}, false},
		{"lat out of range", Point{91, 0}, false},
		{"lng out of range", Point{0, -181}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[ID]struct{})
	for i := 0; i < 1000; i++ {
		id := NewID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}
