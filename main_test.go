package main

import (
	"testing"

	"github.com/pthm-cable/smartnav/config"
)

func TestSessionSeed(t *testing.T) {
	tests := []struct {
		name     string
		flagSeed int64
		flagSet  bool
		cfgSeed  int64
		want     int64
	}{
		{"config default", 0, false, 0, 0},
		{"config seed", 0, false, 17, 17},
		{"flag overrides config", 5, true, 17, 5},
		{"flag zero overrides config", 0, true, 17, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Seed: tt.cfgSeed}
			if got := sessionSeed(tt.flagSeed, tt.flagSet, cfg); got != tt.want {
				t.Errorf("sessionSeed() = %d, want %d", got, tt.want)
			}
		})
	}
}
