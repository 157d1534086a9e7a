package audit

import (
	"context"
	"testing"

	"github.com/medwatch/platform/internal/shared/events"
	"github.com/medwatch/platform/internal/shared/types"
)

func appendEntry(t *testing.T, repo *MemoryRepository, reportID types.ID, operation, from, to string) *Entry {
	t.Helper()
	entry := NewEntry(reportID, types.NewID(), "professional", operation, from, to, "", "")
	if err := repo.Append(context.Background(), entry); err != nil {
		t.Fatalf("Failed to append entry: %v", err)
	}
	return entry
}

func TestEntryHashDeterminism(t *testing.T) {
	entry := NewEntry(types.NewID(), types.NewID(), "supervisor", "approve_report", "UNDER_REVIEW", "APPROVED", "", "abc")

	if !entry.VerifyHash() {
		t.Error("Expected freshly sealed entry to verify")
	}
	if entry.Hash != entry.ComputeHash() {
		t.Error("Expected hash to be stable across recomputation")
	}

	entry.ToStatus = "REJECTED"
	if entry.VerifyHash() {
		t.Error("Expected verification to fail after content change")
	}
}

func TestAppendBuildsChain(t *testing.T) {
	repo := NewMemoryRepository()
	reportID := types.NewID()

	first := appendEntry(t, repo, reportID, "submit_report", "", "SUBMITTED")
	second := appendEntry(t, repo, reportID, "start_review", "SUBMITTED", "UNDER_REVIEW")
	third := appendEntry(t, repo, reportID, "approve_report", "UNDER_REVIEW", "APPROVED")

	if first.PrevHash != "" {
		t.Errorf("Expected empty prev hash on genesis entry, got %s", first.PrevHash)
	}
	if second.PrevHash != first.Hash {
		t.Error("Expected second entry linked to first")
	}
	if third.PrevHash != second.Hash {
		t.Error("Expected third entry linked to second")
	}
	if first.Sequence != 1 || second.Sequence != 2 || third.Sequence != 3 {
		t.Errorf("Expected sequences 1,2,3, got %d,%d,%d", first.Sequence, second.Sequence, third.Sequence)
	}
}

func TestVerifyChain(t *testing.T) {
	repo := NewMemoryRepository()
	reportID := types.NewID()

	appendEntry(t, repo, reportID, "submit_report", "", "SUBMITTED")
	appendEntry(t, repo, reportID, "start_review", "SUBMITTED", "UNDER_REVIEW")
	appendEntry(t, repo, reportID, "reject_report", "UNDER_REVIEW", "REJECTED")

	result, err := repo.VerifyChain(context.Background(), 0)
	if err != nil {
		t.Fatalf("Failed to verify chain: %v", err)
	}
	if !result.Valid {
		t.Error("Expected intact chain to verify")
	}
	if result.Checked != 3 {
		t.Errorf("Expected 3 checked entries, got %d", result.Checked)
	}
	if result.ContentValid != 3 {
		t.Errorf("Expected 3 content-valid entries, got %d", result.ContentValid)
	}
	if result.LinkageValid != 2 {
		t.Errorf("Expected 2 valid links, got %d", result.LinkageValid)
	}
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	repo := NewMemoryRepository()
	reportID := types.NewID()

	appendEntry(t, repo, reportID, "submit_report", "", "SUBMITTED")
	appendEntry(t, repo, reportID, "start_review", "SUBMITTED", "UNDER_REVIEW")
	appendEntry(t, repo, reportID, "approve_report", "UNDER_REVIEW", "APPROVED")

	// Rewrite history: flip the decision in the middle of the chain
	repo.entries[2].ToStatus = "REJECTED"

	result, err := repo.VerifyChain(context.Background(), 0)
	if err != nil {
		t.Fatalf("Failed to verify chain: %v", err)
	}
	if result.Valid {
		t.Error("Expected tampered chain to fail verification")
	}
	if result.ContentInvalid != 1 {
		t.Errorf("Expected 1 content-invalid entry, got %d", result.ContentInvalid)
	}
}

func TestVerifyChainDetectsRelinking(t *testing.T) {
	repo := NewMemoryRepository()
	reportID := types.NewID()

	appendEntry(t, repo, reportID, "submit_report", "", "SUBMITTED")
	appendEntry(t, repo, reportID, "start_review", "SUBMITTED", "UNDER_REVIEW")

	// Re-seal the second entry with a forged predecessor
	repo.entries[1].PrevHash = "forged"
	repo.entries[1].Hash = repo.entries[1].ComputeHash()

	result, err := repo.VerifyChain(context.Background(), 0)
	if err != nil {
		t.Fatalf("Failed to verify chain: %v", err)
	}
	if result.Valid {
		t.Error("Expected relinked chain to fail verification")
	}
	if result.LinkageInvalid != 1 {
		t.Errorf("Expected 1 broken link, got %d", result.LinkageInvalid)
	}
}

func TestListFilters(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	target := types.NewID()
	other := types.NewID()

	appendEntry(t, repo, target, "submit_report", "", "SUBMITTED")
	appendEntry(t, repo, other, "submit_report", "", "SUBMITTED")
	appendEntry(t, repo, target, "start_review", "SUBMITTED", "UNDER_REVIEW")

	byReport, total, err := repo.List(ctx, ListFilter{ReportID: &target})
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if total != 2 || len(byReport) != 2 {
		t.Errorf("Expected 2 entries for report, got %d (total %d)", len(byReport), total)
	}
	// Newest first
	if byReport[0].Operation != "start_review" {
		t.Errorf("Expected newest entry first, got %s", byReport[0].Operation)
	}

	byOp, total, _ := repo.List(ctx, ListFilter{Operation: "submit_report"})
	if total != 2 || len(byOp) != 2 {
		t.Errorf("Expected 2 submit entries, got %d (total %d)", len(byOp), total)
	}

	trail, err := repo.ByReport(ctx, target, 1)
	if err != nil {
		t.Fatalf("Failed to load trail: %v", err)
	}
	if len(trail) != 1 {
		t.Errorf("Expected trail limited to 1, got %d", len(trail))
	}
}

func TestSubscriberRecordsEvents(t *testing.T) {
	repo := NewMemoryRepository()
	bus := events.NewMemoryBus()
	ctx := context.Background()

	sub := NewSubscriber(repo, bus)
	if err := sub.Start(ctx); err != nil {
		t.Fatalf("Failed to start subscriber: %v", err)
	}

	reportID := types.NewID()
	actorID := types.NewID()

	created := events.NewEvent(events.TypeReportCreated, "workflow", map[string]any{
		"to_status": "SUBMITTED",
	}).WithActor(actorID, "patient").WithReport(reportID)
	if err := bus.Publish(ctx, created); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	transitioned := events.NewEvent(events.TypeReportTransitioned, "workflow", map[string]any{
		"operation":   "revert_status",
		"from_status": "APPROVED",
		"to_status":   "UNDER_REVIEW",
		"reason":      "clerical error",
	}).WithActor(actorID, "admin").WithReport(reportID)
	if err := bus.Publish(ctx, transitioned); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	entries, _, err := repo.List(ctx, ListFilter{ReportID: &reportID})
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}

	newest := entries[0]
	if newest.Operation != "revert_status" {
		t.Errorf("Expected operation revert_status, got %s", newest.Operation)
	}
	if newest.Reason != "clerical error" {
		t.Errorf("Expected reason recorded, got %q", newest.Reason)
	}
	if newest.FromStatus != "APPROVED" || newest.ToStatus != "UNDER_REVIEW" {
		t.Errorf("Expected statuses recorded, got %s -> %s", newest.FromStatus, newest.ToStatus)
	}

	oldest := entries[1]
	if oldest.Operation != "submit_report" {
		t.Errorf("Expected created event mapped to submit_report, got %s", oldest.Operation)
	}

	result, _ := repo.VerifyChain(ctx, 0)
	if !result.Valid {
		t.Error("Expected chain fed by subscriber to verify")
	}
}

func TestSubscriberIgnoresSubjectlessEvents(t *testing.T) {
	repo := NewMemoryRepository()
	bus := events.NewMemoryBus()
	ctx := context.Background()

	sub := NewSubscriber(repo, bus)
	if err := sub.Start(ctx); err != nil {
		t.Fatalf("Failed to start subscriber: %v", err)
	}

	if err := bus.Publish(ctx, events.NewEvent(events.TypeReportCreated, "workflow", nil)); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	_, total, _ := repo.List(ctx, ListFilter{})
	if total != 0 {
		t.Errorf("Expected no entries for subjectless event, got %d", total)
	}
}
