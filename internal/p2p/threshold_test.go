package p2p

import "testing"

func TestNewThreshold(t *testing.T) {
	tests := []struct {
		name    string
		low     int
		high    int
		wantErr bool
	}{
		{"normal band", 10, 60, false},
		{"degenerate band", 5, 5, false},
		{"zero band", 0, 0, false},
		{"inverted band", 60, 10, true},
		{"negative low", -1, 10, true},
		{"negative high", 0, -5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th, err := NewThreshold(tt.low, tt.high)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewThreshold(%d, %d) expected error, got nil", tt.low, tt.high)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewThreshold(%d, %d) error: %v", tt.low, tt.high, err)
			}
			if th.Low() != tt.low {
				t.Errorf("Low() = %d, want %d", th.Low(), tt.low)
			}
			if th.High() != tt.high {
				t.Errorf("High() = %d, want %d", th.High(), tt.high)
			}
		})
	}
}

func TestThreshold_String(t *testing.T) {
	th, err := NewThreshold(10, 60)
	if err != nil {
		t.Fatalf("NewThreshold() error: %v", err)
	}
	if got := th.String(); got != "[10..60]" {
		t.Errorf("String() = %q, want %q", got, "[10..60]")
	}
}
