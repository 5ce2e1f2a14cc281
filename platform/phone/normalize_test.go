package phone

import (
	"errors"
	"testing"
)

func TestParseE164(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		region  string
		want    string
		wantErr bool
	}{
		{name: "national US number", input: "(201) 555-0123", region: "US", want: "+12015550123"},
		{name: "already international", input: "+31 20 123 4567", region: "US", want: "+31201234567"},
		{name: "empty", input: "   ", region: "US", wantErr: true},
		{name: "garbage", input: "call me maybe", region: "US", wantErr: true},
		{name: "too short", input: "123", region: "US", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseE164(tt.input, tt.region)
			if tt.wantErr {
				if !errors.Is(err, ErrUnusable) {
					t.Fatalf("expected ErrUnusable, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseE164(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsUsable(t *testing.T) {
	valid := "+12015550123"
	empty := ""

	if IsUsable(nil) {
		t.Error("nil phone must not be usable")
	}
	if IsUsable(&empty) {
		t.Error("empty phone must not be usable")
	}
	if !IsUsable(&valid) {
		t.Error("expected valid phone to be usable")
	}
}

func TestNormalizeE164ReturnsTrimmedInputOnFailure(t *testing.T) {
	if got := NormalizeE164("  not a number "); got != "not a number" {
		t.Errorf("unexpected fallback %q", got)
	}
}
