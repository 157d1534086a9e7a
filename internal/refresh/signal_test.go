package refresh

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/medwatch/platform/internal/shared/events"
	"github.com/medwatch/platform/internal/shared/types"
)

func TestSignalBump(t *testing.T) {
	signal := NewSignal(zerolog.Nop())
	reportID := types.NewID()

	if signal.Counter() != 0 {
		t.Errorf("Expected counter 0, got %d", signal.Counter())
	}

	signal.Bump(reportID, 2)
	signal.Bump(reportID, 3)

	if signal.Counter() != 2 {
		t.Errorf("Expected counter 2, got %d", signal.Counter())
	}
	if signal.Version(reportID) != 3 {
		t.Errorf("Expected version 3, got %d", signal.Version(reportID))
	}

	// Out-of-order versions never move backwards
	signal.Bump(reportID, 1)
	if signal.Version(reportID) != 3 {
		t.Errorf("Expected version held at 3, got %d", signal.Version(reportID))
	}
	if signal.Counter() != 3 {
		t.Errorf("Expected counter 3, got %d", signal.Counter())
	}
}

func TestSignalVersionUnseen(t *testing.T) {
	signal := NewSignal(zerolog.Nop())

	if signal.Version(types.NewID()) != 0 {
		t.Error("Expected zero version for unseen report")
	}
}

func TestSignalFromBus(t *testing.T) {
	signal := NewSignal(zerolog.Nop())
	bus := events.NewMemoryBus()
	ctx := context.Background()

	if err := signal.Start(ctx, bus); err != nil {
		t.Fatalf("Failed to start signal: %v", err)
	}

	reportID := types.NewID()
	event := events.NewEvent(events.TypeReportTransitioned, "workflow", map[string]any{
		"version": int64(4),
	}).WithReport(reportID)

	if err := bus.Publish(ctx, event); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
	if signal.Counter() != 1 {
		t.Errorf("Expected counter 1, got %d", signal.Counter())
	}
	if signal.Version(reportID) != 4 {
		t.Errorf("Expected version 4, got %d", signal.Version(reportID))
	}

	// Versions arriving as float64 after a JSON roundtrip still count
	decoded := events.NewEvent(events.TypeReportTransitioned, "workflow", map[string]any{
		"version": float64(5),
	}).WithReport(reportID)
	if err := bus.Publish(ctx, decoded); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
	if signal.Version(reportID) != 5 {
		t.Errorf("Expected version 5, got %d", signal.Version(reportID))
	}

	// Events without a subject report are ignored
	if err := bus.Publish(ctx, events.NewEvent(events.TypeReportCreated, "workflow", nil)); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
	if signal.Counter() != 2 {
		t.Errorf("Expected counter unchanged for subjectless event, got %d", signal.Counter())
	}
}
