package workflow

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/medwatch/platform/internal/identity"
	"github.com/medwatch/platform/internal/refresh"
	"github.com/medwatch/platform/internal/report/domain"
	"github.com/medwatch/platform/internal/report/infrastructure"
	apperrors "github.com/medwatch/platform/internal/shared/errors"
	"github.com/medwatch/platform/internal/shared/events"
	"github.com/medwatch/platform/internal/shared/types"
)

type testEnv struct {
	engine       *Engine
	bus          *events.MemoryBus
	patient      types.ID
	professional types.ID
	supervisor   types.ID
	admin        types.ID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := identity.NewMemoryDirectory()
	bus := events.NewMemoryBus()
	repo := infrastructure.NewMemoryRepository()
	engine := NewEngine(repo, identity.NewResolver(dir), bus, zerolog.Nop())

	return &testEnv{
		engine:       engine,
		bus:          bus,
		patient:      dir.Seed("patient", identity.RolePatient),
		professional: dir.Seed("professional", identity.RoleProfessional),
		supervisor:   dir.Seed("supervisor", identity.RoleSupervisor),
		admin:        dir.Seed("admin", identity.RoleAdmin),
	}
}

func (e *testEnv) submit(t *testing.T) *domain.Report {
	t.Helper()
	rep, err := e.engine.Create(context.Background(), e.patient, CreateInput{
		MedicationName: "Metformin",
		Description:    "nausea after evening dose",
		Severity:       domain.SeverityModerate,
	})
	if err != nil {
		t.Fatalf("Failed to create report: %v", err)
	}
	return rep
}

// TestEngineFullWorkflow drives a report from submission to a reclamation
// decision through the engine
func TestEngineFullWorkflow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rep := env.submit(t)

	rep, err := env.engine.StartReview(ctx, env.professional, rep.ID)
	if err != nil {
		t.Fatalf("Failed to start review: %v", err)
	}
	if rep.Status != domain.StatusUnderReview {
		t.Errorf("Expected status %s, got %s", domain.StatusUnderReview, rep.Status)
	}

	rep, err = env.engine.RequestAdditionalInfo(ctx, env.professional, rep.ID, "dose amount?")
	if err != nil {
		t.Fatalf("Failed to request info: %v", err)
	}

	rep, err = env.engine.ProvideAdditionalInfo(ctx, env.patient, rep.ID, "500mg twice daily")
	if err != nil {
		t.Fatalf("Failed to provide info: %v", err)
	}

	rep, err = env.engine.StartReview(ctx, env.professional, rep.ID)
	if err != nil {
		t.Fatalf("Failed to resume review: %v", err)
	}

	rep, err = env.engine.RejectReport(ctx, env.professional, rep.ID)
	if err != nil {
		t.Fatalf("Failed to reject: %v", err)
	}

	rep, err = env.engine.StartReclamation(ctx, env.patient, rep.ID, "reaction confirmed by GP")
	if err != nil {
		t.Fatalf("Failed to start reclamation: %v", err)
	}

	rep, err = env.engine.ApproveReclamation(ctx, env.supervisor, rep.ID)
	if err != nil {
		t.Fatalf("Failed to approve reclamation: %v", err)
	}
	if rep.Status != domain.StatusReclamationApproved {
		t.Errorf("Expected status %s, got %s", domain.StatusReclamationApproved, rep.Status)
	}

	// One version bump per accepted operation: create + 7 transitions
	if rep.Version != 8 {
		t.Errorf("Expected version 8, got %d", rep.Version)
	}
}

// TestEngineAuthorizationBeforeState tests that a forbidden caller gets a
// 403 even when the state also forbids the operation
func TestEngineAuthorizationBeforeState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rep := env.submit(t)

	// approve_report is both forbidden for patients and illegal from
	// SUBMITTED; forbidden must win.
	_, err := env.engine.ApproveReport(ctx, env.patient, rep.ID)
	if !apperrors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("Expected forbidden error, got %v", err)
	}

	// The same operation from an allowed role reports the state problem.
	_, err = env.engine.ApproveReport(ctx, env.professional, rep.ID)
	if !apperrors.Is(err, apperrors.ErrIllegalState) {
		t.Errorf("Expected illegal-state error, got %v", err)
	}
}

// TestEngineCreateRequiresPatient tests that only patients may submit
// reports
func TestEngineCreateRequiresPatient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	input := CreateInput{
		MedicationName: "Metformin",
		Description:    "nausea after evening dose",
		Severity:       domain.SeverityModerate,
	}

	for _, actor := range []types.ID{env.professional, env.supervisor, env.admin} {
		if _, err := env.engine.Create(ctx, actor, input); !apperrors.Is(err, apperrors.ErrForbidden) {
			t.Errorf("Expected forbidden error for non-patient creator, got %v", err)
		}
	}

	if _, err := env.engine.Create(ctx, env.patient, input); err != nil {
		t.Errorf("Expected patient submission to succeed, got %v", err)
	}
}

// TestEngineUnknownActor tests the unresolved-identity failure
func TestEngineUnknownActor(t *testing.T) {
	env := newTestEnv(t)
	rep := env.submit(t)

	_, err := env.engine.StartReview(context.Background(), types.NewID(), rep.ID)
	if err == nil {
		t.Fatal("Expected error for unknown actor")
	}
	appErr, ok := err.(*apperrors.AppError)
	if !ok || appErr.Code != "UNKNOWN_IDENTITY" {
		t.Errorf("Expected unknown-identity error, got %v", err)
	}
}

// TestEngineUnknownReport tests the missing-report failure
func TestEngineUnknownReport(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.StartReview(context.Background(), env.professional, types.NewID())
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected not-found error, got %v", err)
	}
}

// TestEngineConcurrentDecisions tests that racing approve and reject
// produce exactly one accepted decision
func TestEngineConcurrentDecisions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rep := env.submit(t)

	if _, err := env.engine.StartReview(ctx, env.professional, rep.ID); err != nil {
		t.Fatalf("Failed to start review: %v", err)
	}

	var wg sync.WaitGroup
	var approveErr, rejectErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, approveErr = env.engine.ApproveReport(ctx, env.professional, rep.ID)
	}()
	go func() {
		defer wg.Done()
		_, rejectErr = env.engine.RejectReport(ctx, env.supervisor, rep.ID)
	}()
	wg.Wait()

	if (approveErr == nil) == (rejectErr == nil) {
		t.Fatalf("Expected exactly one decision to win, got approve=%v reject=%v", approveErr, rejectErr)
	}

	loser := approveErr
	if loser == nil {
		loser = rejectErr
	}
	if !apperrors.Is(loser, apperrors.ErrIllegalState) {
		t.Errorf("Expected loser to see illegal-state, got %v", loser)
	}

	final, err := env.engine.Get(ctx, rep.ID)
	if err != nil {
		t.Fatalf("Failed to load report: %v", err)
	}
	if final.Status != domain.StatusApproved && final.Status != domain.StatusRejected {
		t.Errorf("Expected a terminal decision, got %s", final.Status)
	}
	if final.Version != 3 {
		t.Errorf("Expected version 3 after one winning decision, got %d", final.Version)
	}
}

// TestEngineRefreshSignal tests that each accepted operation moves the
// refresh counter by exactly one
func TestEngineRefreshSignal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	signal := refresh.NewSignal(zerolog.Nop())
	if err := signal.Start(ctx, env.bus); err != nil {
		t.Fatalf("Failed to start refresh signal: %v", err)
	}

	rep := env.submit(t)
	if signal.Counter() != 1 {
		t.Errorf("Expected counter 1 after submit, got %d", signal.Counter())
	}

	if _, err := env.engine.StartReview(ctx, env.professional, rep.ID); err != nil {
		t.Fatalf("Failed to start review: %v", err)
	}
	if signal.Counter() != 2 {
		t.Errorf("Expected counter 2, got %d", signal.Counter())
	}

	// Rejected operations leave the counter alone
	env.engine.ApproveReport(ctx, env.patient, rep.ID)
	if signal.Counter() != 2 {
		t.Errorf("Expected counter unchanged on forbidden op, got %d", signal.Counter())
	}

	if _, err := env.engine.ApproveReport(ctx, env.professional, rep.ID); err != nil {
		t.Fatalf("Failed to approve: %v", err)
	}
	if signal.Counter() != 3 {
		t.Errorf("Expected counter 3, got %d", signal.Counter())
	}

	if signal.Version(rep.ID) != 3 {
		t.Errorf("Expected report version 3 in signal, got %d", signal.Version(rep.ID))
	}
}

// TestEngineSendMessageSenderFromRole tests that the sender label is
// derived from the resolved role, not the request
func TestEngineSendMessageSenderFromRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rep := env.submit(t)

	rep, err := env.engine.SendMessage(ctx, env.patient, rep.ID, "feeling worse today")
	if err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
	if rep.Messages[0].Sender != domain.SenderPatient {
		t.Errorf("Expected patient sender, got %s", rep.Messages[0].Sender)
	}

	rep, err = env.engine.SendMessage(ctx, env.professional, rep.ID, "please visit your GP")
	if err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
	if rep.Messages[1].Sender != domain.SenderProfessional {
		t.Errorf("Expected professional sender, got %s", rep.Messages[1].Sender)
	}
}

// TestEngineCloseChat tests chat closing through the engine
func TestEngineCloseChat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rep := env.submit(t)

	rep, err := env.engine.CloseChat(ctx, env.professional, rep.ID)
	if err != nil {
		t.Fatalf("Failed to close chat: %v", err)
	}
	if rep.ChatOpen {
		t.Error("Expected chat closed")
	}

	_, err = env.engine.SendMessage(ctx, env.patient, rep.ID, "hello?")
	if !apperrors.Is(err, apperrors.ErrIllegalState) {
		t.Errorf("Expected illegal-state on closed chat, got %v", err)
	}

	_, err = env.engine.CloseChat(ctx, env.professional, rep.ID)
	if !apperrors.Is(err, apperrors.ErrIllegalState) {
		t.Errorf("Expected illegal-state on repeated close, got %v", err)
	}
}

// TestEngineAssignReviewerValidation tests reviewer role checks
func TestEngineAssignReviewerValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rep := env.submit(t)

	// A patient cannot be made a reviewer
	_, err := env.engine.AssignReviewer(ctx, env.supervisor, rep.ID, env.patient)
	if err == nil {
		t.Error("Expected error assigning a patient as reviewer")
	}

	rep, err = env.engine.AssignReviewer(ctx, env.supervisor, rep.ID, env.professional)
	if err != nil {
		t.Fatalf("Failed to assign reviewer: %v", err)
	}
	if rep.AssignedReviewerID == nil || *rep.AssignedReviewerID != env.professional {
		t.Error("Expected professional assigned as reviewer")
	}
}

// TestEngineRandomWalk fires random operations from random actors and
// checks that the report never leaves the defined state space
func TestEngineRandomWalk(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rep := env.submit(t)

	rng := rand.New(rand.NewSource(42))
	actors := []types.ID{env.patient, env.professional, env.supervisor, env.admin}

	ops := []func(actor types.ID) error{
		func(a types.ID) error { _, err := env.engine.StartReview(ctx, a, rep.ID); return err },
		func(a types.ID) error { _, err := env.engine.RequestAdditionalInfo(ctx, a, rep.ID, "more"); return err },
		func(a types.ID) error { _, err := env.engine.ProvideAdditionalInfo(ctx, a, rep.ID, "info"); return err },
		func(a types.ID) error { _, err := env.engine.ApproveReport(ctx, a, rep.ID); return err },
		func(a types.ID) error { _, err := env.engine.RejectReport(ctx, a, rep.ID); return err },
		func(a types.ID) error { _, err := env.engine.StartReclamation(ctx, a, rep.ID, "appeal"); return err },
		func(a types.ID) error { _, err := env.engine.ApproveReclamation(ctx, a, rep.ID); return err },
		func(a types.ID) error { _, err := env.engine.RejectReclamation(ctx, a, rep.ID); return err },
		func(a types.ID) error { _, err := env.engine.SendMessage(ctx, a, rep.ID, "msg"); return err },
		func(a types.ID) error { _, err := env.engine.CloseChat(ctx, a, rep.ID); return err },
	}

	chatWasClosed := false
	for i := 0; i < 500; i++ {
		op := ops[rng.Intn(len(ops))]
		actor := actors[rng.Intn(len(actors))]
		op(actor)

		current, err := env.engine.Get(ctx, rep.ID)
		if err != nil {
			t.Fatalf("Failed to load report: %v", err)
		}
		if !current.Status.IsValid() {
			t.Fatalf("Report left the defined state space: %s", current.Status)
		}
		if chatWasClosed && current.ChatOpen {
			t.Fatal("Closed chat reopened")
		}
		if !current.ChatOpen {
			chatWasClosed = true
		}
	}
}
