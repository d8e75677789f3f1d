package duration

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		// Single human-friendly units
		{name: "1 day", input: "1d", want: Day},
		{name: "30 days", input: "30d", want: 30 * Day},
		{name: "2 weeks", input: "2w", want: 2 * Week},
		{name: "1 month", input: "1M", want: Month},
		{name: "1 year", input: "1y", want: Year},

		// Compound human-friendly units
		{name: "1 year 6 months", input: "1y6M", want: Year + 6*Month},
		{name: "2 weeks 3 days", input: "2w3d", want: 2*Week + 3*Day},

		// Mixed with standard Go units
		{name: "1 day 12 hours", input: "1d12h", want: Day + 12*time.Hour},
		{name: "1 year 30 minutes", input: "1y30m", want: Year + 30*time.Minute},

		// Standard Go duration units (fallback)
		{name: "24 hours", input: "24h", want: 24 * time.Hour},
		{name: "2 seconds", input: "2s", want: 2 * time.Second},
		{name: "500 milliseconds", input: "500ms", want: 500 * time.Millisecond},
		{name: "1 hour 30 minutes", input: "1h30m", want: time.Hour + 30*time.Minute},

		// Special cases
		{name: "zero duration", input: "0", want: 0},
		{name: "zero with unit", input: "0d", want: 0},

		// Whitespace is trimmed
		{name: "whitespace around", input: "  1d  ", want: Day},

		// Error cases
		{name: "empty string", input: "", wantErr: true},
		{name: "invalid format", input: "abc", wantErr: true},
		{name: "invalid unit", input: "1x", wantErr: true},
		{name: "missing value", input: "d", wantErr: true},
		{name: "negative human unit", input: "-1d", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseEquivalences(t *testing.T) {
	tests := []struct {
		name  string
		human string
		goStd string
	}{
		{name: "1 day = 24 hours", human: "1d", goStd: "24h"},
		{name: "1 week = 168 hours", human: "1w", goStd: "168h"},
		{name: "1 month = 720 hours", human: "1M", goStd: "720h"},
		{name: "1 year = 8760 hours", human: "1y", goStd: "8760h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			humanDur, err := Parse(tt.human)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.human, err)
			}

			goDur, err := time.ParseDuration(tt.goStd)
			if err != nil {
				t.Fatalf("time.ParseDuration(%q) error = %v", tt.goStd, err)
			}

			if humanDur != goDur {
				t.Errorf("Parse(%q) = %v, want %v (from %q)", tt.human, humanDur, goDur, tt.goStd)
			}
		})
	}
}
