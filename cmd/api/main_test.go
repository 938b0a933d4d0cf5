package main

import (
	"testing"
	"time"
)

func TestShutdownTimeoutCoversDelivery(t *testing.T) {
	tests := []struct {
		delivery time.Duration
		want     time.Duration
	}{
		{delivery: 0, want: minShutdownTimeout},
		{delivery: 5 * time.Second, want: minShutdownTimeout},
		{delivery: 60 * time.Second, want: 70 * time.Second},
	}
	for _, tt := range tests {
		if got := shutdownTimeout(tt.delivery); got != tt.want {
			t.Fatalf("shutdownTimeout(%s) = %s, want %s", tt.delivery, got, tt.want)
		}
	}
}
