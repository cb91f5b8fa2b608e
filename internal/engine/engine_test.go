package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aspira-app/aspira/api/internal/db"
	"github.com/aspira-app/aspira/api/internal/events"
	"github.com/aspira-app/aspira/api/internal/governance"
	"github.com/aspira-app/aspira/api/internal/logging"
	testutil "github.com/aspira-app/aspira/api/internal/testing"
)

func newTestEngine(t *testing.T, tdb *testutil.TestDB) (*Engine, map[governance.Channel]*testutil.MockProvider) {
	t.Helper()

	registry, mocks := testutil.NewMockRegistry()
	hub := events.NewHub()
	logger := logging.NewLogger("error", "text", "stdout")
	eng := NewEngine(tdb.Queries, NewExecutor(registry), hub, logger, governance.DefaultSystemDefaults())
	return eng, mocks
}

/* enableActions opts the user in and grants the given channels. The
   system defaults leave everything off, so tests grant exactly what
   they exercise. */
func enableActions(t *testing.T, tdb *testutil.TestDB, userID string, channels ...governance.Channel) {
	t.Helper()

	enabled := true
	settings := &governance.UserSettings{
		ActionsEnabled:    &enabled,
		ChannelPermission: make(map[governance.Channel]bool, len(channels)),
	}
	for _, ch := range channels {
		settings.ChannelPermission[ch] = true
	}
	if err := tdb.Queries.UpsertUserSettings(context.Background(), userID, settings); err != nil {
		t.Fatalf("Failed to save user settings: %v", err)
	}
}

func TestEngine_Propose_PolicyDisabled(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()
	eng, _ := newTestEngine(t, tdb)

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")

	// No saved settings: the fail-closed defaults reject everything
	_, err := eng.Propose(ctx, user.ID, ProposeRequest{
		ActionType:      "send_email",
		ConfidenceScore: 0.95,
	})
	if !errors.Is(err, ErrPolicyDisabled) {
		t.Errorf("Expected ErrPolicyDisabled, got %v", err)
	}
}

func TestEngine_Propose_ChannelNotPermitted(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()
	eng, _ := newTestEngine(t, tdb)

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")
	enableActions(t, tdb, user.ID, governance.ChannelQuery)

	_, err := eng.Propose(ctx, user.ID, ProposeRequest{
		ActionType:      "send_email",
		ConfidenceScore: 0.95,
	})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied, got %v", err)
	}
}

func TestEngine_Propose_AutoApproved(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()
	eng, mocks := newTestEngine(t, tdb)

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")
	enableActions(t, tdb, user.ID, governance.ChannelQuery)

	// Low risk, high confidence, low tier auto-approved by default
	result, err := eng.Propose(ctx, user.ID, ProposeRequest{
		ActionType:      "query_data",
		Payload:         map[string]interface{}{"query": "upcoming bills"},
		ConfidenceScore: 0.95,
	})
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}

	if !result.AutoApproved {
		t.Fatalf("Expected auto-approval, got reason %s", result.Reason)
	}
	if result.PendingActionID != "" {
		t.Error("Expected no pending action for auto-approved proposal")
	}
	if mocks[governance.ChannelQuery].CallCount() != 1 {
		t.Errorf("Expected 1 provider call, got %d", mocks[governance.ChannelQuery].CallCount())
	}

	// Nothing left awaiting a decision
	pending, _ := eng.ListPending(ctx, user.ID)
	if len(pending) != 0 {
		t.Errorf("Expected no pending actions, got %d", len(pending))
	}
}

func TestEngine_Propose_Pending(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()
	eng, mocks := newTestEngine(t, tdb)

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")
	enableActions(t, tdb, user.ID, governance.ChannelEmail)

	result, err := eng.Propose(ctx, user.ID, ProposeRequest{
		ActionType:      "send_email",
		Payload:         map[string]interface{}{"to": "someone@example.com"},
		ConfidenceScore: 0.95,
	})
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}

	if result.AutoApproved {
		t.Fatal("Expected high-risk action to await confirmation")
	}
	if result.PendingActionID == "" {
		t.Fatal("Expected a pending action id")
	}
	if result.ExpiresAt == nil {
		t.Fatal("Expected an expiry timestamp")
	}
	// High risk gets the 5 minute window
	window := time.Until(*result.ExpiresAt)
	if window < 4*time.Minute || window > 6*time.Minute {
		t.Errorf("Expected roughly 5 minute window, got %s", window)
	}
	if mocks[governance.ChannelEmail].CallCount() != 0 {
		t.Error("Expected no execution before confirmation")
	}

	pending, _ := eng.ListPending(ctx, user.ID)
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending action, got %d", len(pending))
	}
	if pending[0].RiskTier != governance.RiskHigh {
		t.Errorf("Expected high risk tier, got %s", pending[0].RiskTier)
	}
}

func TestEngine_Propose_LowConfidence(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()
	eng, mocks := newTestEngine(t, tdb)

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")
	enableActions(t, tdb, user.ID, governance.ChannelQuery)

	// Below the 0.70 default threshold even a low-risk action holds
	result, err := eng.Propose(ctx, user.ID, ProposeRequest{
		ActionType:      "query_data",
		ConfidenceScore: 0.5,
	})
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}

	if result.AutoApproved {
		t.Fatal("Expected low-confidence proposal to hold")
	}
	if result.Reason != governance.ReasonLowConfidence {
		t.Errorf("Expected reason low_confidence, got %s", result.Reason)
	}
	if mocks[governance.ChannelQuery].CallCount() != 0 {
		t.Error("Expected no execution for a held proposal")
	}
}

func TestEngine_Propose_RolloutDisabled(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()
	eng, _ := newTestEngine(t, tdb)

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")
	enableActions(t, tdb, user.ID, governance.ChannelQuery)

	eng.SetRolloutPercent(0)
	_, err := eng.Propose(ctx, user.ID, ProposeRequest{
		ActionType:      "query_data",
		ConfidenceScore: 0.95,
	})
	if !errors.Is(err, ErrPolicyDisabled) {
		t.Errorf("Expected ErrPolicyDisabled outside the rollout, got %v", err)
	}
}

func proposePending(t *testing.T, eng *Engine, userID string) string {
	t.Helper()

	result, err := eng.Propose(context.Background(), userID, ProposeRequest{
		ActionType:      "send_email",
		Payload:         map[string]interface{}{"to": "someone@example.com"},
		ConfidenceScore: 0.95,
	})
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if result.PendingActionID == "" {
		t.Fatal("Expected a pending action")
	}
	return result.PendingActionID
}

func TestEngine_Confirm(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()
	eng, mocks := newTestEngine(t, tdb)

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")
	enableActions(t, tdb, user.ID, governance.ChannelEmail)

	actionID := proposePending(t, eng, user.ID)

	action, err := eng.Confirm(ctx, user.ID, actionID)
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	if action.Status != db.StatusExecuted {
		t.Errorf("Expected status executed, got %s", action.Status)
	}
	if mocks[governance.ChannelEmail].CallCount() != 1 {
		t.Errorf("Expected 1 provider call, got %d", mocks[governance.ChannelEmail].CallCount())
	}
	if action.ExecutionResult == nil {
		t.Error("Expected an execution result")
	}

	// Decision feedback is recorded automatically
	summary, err := tdb.Queries.GetFeedbackSummary(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetFeedbackSummary() error = %v", err)
	}
	if summary.Confirmations != 1 {
		t.Errorf("Expected 1 confirmation feedback record, got %d", summary.Confirmations)
	}
}

func TestEngine_Confirm_Twice(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()
	eng, mocks := newTestEngine(t, tdb)

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")
	enableActions(t, tdb, user.ID, governance.ChannelEmail)

	actionID := proposePending(t, eng, user.ID)

	if _, err := eng.Confirm(ctx, user.ID, actionID); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	_, err := eng.Confirm(ctx, user.ID, actionID)
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Errorf("Expected ErrAlreadyProcessed, got %v", err)
	}
	if mocks[governance.ChannelEmail].CallCount() != 1 {
		t.Errorf("Expected exactly 1 execution, got %d", mocks[governance.ChannelEmail].CallCount())
	}
}

func TestEngine_Confirm_Concurrent(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()
	eng, mocks := newTestEngine(t, tdb)

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")
	enableActions(t, tdb, user.ID, governance.ChannelEmail)

	actionID := proposePending(t, eng, user.ID)

	// Two racing confirms: the conditional update lets exactly one
	// through, the other sees the row already decided
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.Confirm(ctx, user.ID, actionID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var successes, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrAlreadyProcessed):
			conflicts++
		default:
			t.Errorf("Unexpected error from racing confirm: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("Expected exactly 1 successful confirm, got %d", successes)
	}
	if conflicts != 1 {
		t.Errorf("Expected exactly 1 conflict, got %d", conflicts)
	}
	if mocks[governance.ChannelEmail].CallCount() != 1 {
		t.Errorf("Expected exactly 1 execution, got %d", mocks[governance.ChannelEmail].CallCount())
	}
}

func TestEngine_Confirm_Expired(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()
	eng, mocks := newTestEngine(t, tdb)

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")
	enableActions(t, tdb, user.ID, governance.ChannelEmail)

	actionID := proposePending(t, eng, user.ID)

	// Jump past the 5 minute high-risk window
	eng.now = func() time.Time { return time.Now().Add(6 * time.Minute) }

	_, err := eng.Confirm(ctx, user.ID, actionID)
	if !errors.Is(err, ErrExpired) {
		t.Errorf("Expected ErrExpired, got %v", err)
	}
	if mocks[governance.ChannelEmail].CallCount() != 0 {
		t.Error("Expected no execution of an expired action")
	}

	// The failed confirm flipped the row to expired on the way out
	action, err := tdb.Queries.GetPendingActionOwned(ctx, actionID, user.ID)
	if err != nil {
		t.Fatalf("GetPendingActionOwned() error = %v", err)
	}
	if action.Status != db.StatusExpired {
		t.Errorf("Expected status expired, got %s", action.Status)
	}
}

func TestEngine_Confirm_ExecutionFailure(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()
	eng, mocks := newTestEngine(t, tdb)

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")
	enableActions(t, tdb, user.ID, governance.ChannelEmail)

	actionID := proposePending(t, eng, user.ID)
	mocks[governance.ChannelEmail].Fail = true

	action, err := eng.Confirm(ctx, user.ID, actionID)
	if err == nil {
		t.Fatal("Expected execution error")
	}
	if action == nil {
		t.Fatal("Expected the action back alongside the error")
	}
	if action.Status != db.StatusFailed {
		t.Errorf("Expected status failed, got %s", action.Status)
	}

	// Terminal: a retry is a conflict, not a second execution
	_, err = eng.Confirm(ctx, user.ID, actionID)
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Errorf("Expected ErrAlreadyProcessed on retry, got %v", err)
	}
}

func TestEngine_Confirm_OtherUser(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()
	eng, mocks := newTestEngine(t, tdb)

	owner, _ := testutil.CreateTestUser(ctx, tdb.Queries, "owner", "password123")
	other, _ := testutil.CreateTestUser(ctx, tdb.Queries, "other", "password123")
	enableActions(t, tdb, owner.ID, governance.ChannelEmail)

	actionID := proposePending(t, eng, owner.ID)

	// Someone else's action id reads as not found, never as a state error
	_, err := eng.Confirm(ctx, other.ID, actionID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if mocks[governance.ChannelEmail].CallCount() != 0 {
		t.Error("Expected no execution")
	}
}

func TestEngine_Cancel(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()
	eng, mocks := newTestEngine(t, tdb)

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")
	enableActions(t, tdb, user.ID, governance.ChannelEmail)

	actionID := proposePending(t, eng, user.ID)

	action, err := eng.Cancel(ctx, user.ID, actionID, "that's the wrong recipient")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	if action.Status != db.StatusCancelled {
		t.Errorf("Expected status cancelled, got %s", action.Status)
	}
	if action.RejectionReason == nil || *action.RejectionReason != string(governance.RejectionIncorrectAction) {
		t.Errorf("Expected categorized reason incorrect_action, got %v", action.RejectionReason)
	}
	if mocks[governance.ChannelEmail].CallCount() != 0 {
		t.Error("Expected no execution of a cancelled action")
	}

	summary, _ := tdb.Queries.GetFeedbackSummary(ctx, user.ID)
	if summary.Rejections != 1 {
		t.Errorf("Expected 1 rejection feedback record, got %d", summary.Rejections)
	}
	if summary.RejectionReasonCount[string(governance.RejectionIncorrectAction)] != 1 {
		t.Error("Expected rejection reason to be aggregated")
	}
}

func TestSweeper_SweepOnce(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()
	eng, _ := newTestEngine(t, tdb)

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")
	enableActions(t, tdb, user.ID, governance.ChannelEmail)

	actionID := proposePending(t, eng, user.ID)

	// Backdate the expiry so the sweeper sees a timed-out row
	if _, err := tdb.DB.ExecContext(ctx,
		`UPDATE pending_actions SET expires_at = NOW() - INTERVAL '1 minute' WHERE id = $1`, actionID); err != nil {
		t.Fatalf("Failed to backdate action: %v", err)
	}

	hub := events.NewHub()
	logger := logging.NewLogger("error", "text", "stdout")
	sweeper := NewSweeper(tdb.Queries, hub, logger, time.Minute)
	sweeper.SweepOnce(ctx)

	action, err := tdb.Queries.GetPendingActionOwned(ctx, actionID, user.ID)
	if err != nil {
		t.Fatalf("GetPendingActionOwned() error = %v", err)
	}
	if action.Status != db.StatusExpired {
		t.Errorf("Expected status expired after sweep, got %s", action.Status)
	}
}
