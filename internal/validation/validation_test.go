package validation

import "testing"

func TestIsValidOrderID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"client generated", "ORD-1756700000000", true},
		{"server generated", "ORD-9f6b1c2a-3d4e-4f5a-8b6c-7d8e9f0a1b2c", true},
		{"empty", "", false},
		{"prefix only", "ORD-", false},
		{"no prefix", "1756700000000", false},
		{"lowercase prefix", "ord-123", false},
		{"forbidden characters", "ORD-12 34", false},
		{"too long", "ORD-" + string(make([]byte, 70)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidOrderID(tt.id); got != tt.want {
				t.Errorf("IsValidOrderID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}
