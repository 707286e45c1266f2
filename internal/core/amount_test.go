package core

import "testing"

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1200", 1200, false},
		{" 1,200 ", 1200, false},
		{"1_000_000", 1000000, false},
		{"+15", 15, false},
		{"-300", -300, false},
		{"12.99", 12, false},
		{"-7.5", -7, false},
		{".5", 0, false},
		{"", 0, true},
		{"-", 0, true},
		{"abc", 0, true},
		{"12a", 0, true},
		{"1.2.3", 0, true},
		{"99999999999999999999", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAmount(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAmount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
