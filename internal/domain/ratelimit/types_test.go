package ratelimit

import "testing"

func TestWindowStart_FloorsToMinuteBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		nowMs int64
		want  int64
	}{
		{0, 0},
		{59_999, 0},
		{60_000, 60_000},
		{119_999, 60_000},
		{120_000, 120_000},
		{1_753_900_061_234, 1_753_900_020_000},
	}

	for _, tt := range tests {
		if got := WindowStart(tt.nowMs); got != tt.want {
			t.Errorf("WindowStart(%d) = %d, want %d", tt.nowMs, got, tt.want)
		}
	}
}
