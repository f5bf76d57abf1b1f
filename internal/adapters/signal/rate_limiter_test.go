package signal

import (
	"testing"
	"time"

	"github.com/dkeye/Tandem/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNewLimiter(t *testing.T) {
	r := require.New(t)

	// zero rate never limits
	unlimited := newLimiter(0, 0)
	for range 1000 {
		r.True(unlimited.Allow())
	}

	// burst is spent, then refused until the bucket refills
	l := newLimiter(1, 3)
	r.True(l.Allow())
	r.True(l.Allow())
	r.True(l.Allow())
	r.False(l.Allow())

	// a burst below one is raised to one
	r.True(newLimiter(1, 0).Allow())
}

func TestOptionsFromConfig(t *testing.T) {
	r := require.New(t)
	cfg := &config.Config{
		ReadLimit:   4096,
		PingPeriod:  54 * time.Second,
		PongWait:    60 * time.Second,
		WriteWait:   10 * time.Second,
		SendBuffer:  8,
		SignalRate:  5,
		SignalBurst: 10,
	}

	opts := OptionsFromConfig(cfg)

	r.Equal(Options{
		ReadLimit:   4096,
		PingPeriod:  54 * time.Second,
		PongWait:    60 * time.Second,
		WriteWait:   10 * time.Second,
		SendBuffer:  8,
		SignalRate:  5,
		SignalBurst: 10,
	}, opts)
}
