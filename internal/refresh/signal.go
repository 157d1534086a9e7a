// Package refresh maintains a cheap change signal for polling clients.
// Instead of re-fetching report lists on a timer, a client polls the
// signal and only re-fetches when the counter moved past what it last saw.
package refresh

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/medwatch/platform/internal/shared/events"
	"github.com/medwatch/platform/internal/shared/metrics"
	"github.com/medwatch/platform/internal/shared/types"
)

// Signal tracks a global change counter plus the last seen version of
// each report. The counter increases by exactly one per accepted change.
type Signal struct {
	counter atomic.Uint64

	mu       sync.RWMutex
	versions map[types.ID]int64

	logger zerolog.Logger
}

// NewSignal creates an empty signal
func NewSignal(logger zerolog.Logger) *Signal {
	return &Signal{
		versions: make(map[types.ID]int64),
		logger:   logger.With().Str("component", "refresh").Logger(),
	}
}

// Start subscribes the signal to all report events on the bus.
func (s *Signal) Start(ctx context.Context, bus events.EventBus) error {
	return bus.Subscribe(ctx, "report.*", "refresh-signal", s.handle)
}

func (s *Signal) handle(ctx context.Context, event events.Event) error {
	if event.ReportID.IsZero() {
		return nil
	}

	var version int64
	if v, ok := event.Data["version"]; ok {
		switch n := v.(type) {
		case int64:
			version = n
		case float64:
			version = int64(n)
		}
	}

	s.Bump(event.ReportID, version)
	return nil
}

// Bump records a change to the given report.
func (s *Signal) Bump(reportID types.ID, version int64) {
	value := s.counter.Add(1)

	s.mu.Lock()
	if version > s.versions[reportID] {
		s.versions[reportID] = version
	}
	s.mu.Unlock()

	metrics.SetRefreshSignal(value)
}

// Counter returns the global change counter.
func (s *Signal) Counter() uint64 {
	return s.counter.Load()
}

// Version returns the last seen version of a report, zero if unseen.
func (s *Signal) Version(reportID types.ID) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[reportID]
}
