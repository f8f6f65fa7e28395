package period

import (
	"testing"
	"time"
)

func TestStart(t *testing.T) {
	p := Default()

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "mid week",
			in:   time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC), // Wednesday
			want: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "monday maps to itself",
			in:   time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			want: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "sunday belongs to previous monday",
			in:   time.Date(2025, 3, 16, 23, 59, 0, 0, time.UTC),
			want: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Start(tt.in); !got.Equal(tt.want) {
				t.Errorf("Start(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestKey(t *testing.T) {
	p := Default()
	in := time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC)
	if got := p.Key(in); got != "2025-03-10" {
		t.Errorf("Key() = %q, want %q", got, "2025-03-10")
	}
}

func TestNext(t *testing.T) {
	p := Default()
	in := time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC)
	want := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	if got := p.Next(in); !got.Equal(want) {
		t.Errorf("Next() = %v, want %v", got, want)
	}
}

func TestCustomAnchor(t *testing.T) {
	p := Policy{Anchor: time.Sunday, Location: time.UTC}
	in := time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC) // Wednesday
	want := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	if got := p.Start(in); !got.Equal(want) {
		t.Errorf("Start() with Sunday anchor = %v, want %v", got, want)
	}
}
