package db_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/aspira-app/aspira/api/internal/db"
	"github.com/aspira-app/aspira/api/internal/governance"
	testutil "github.com/aspira-app/aspira/api/internal/testing"
)

func TestQueries_CreateUser(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()

	user := &db.User{
		Username:     "testuser",
		PasswordHash: "hashed_password",
		IsAdmin:      false,
	}

	err := tdb.Queries.CreateUser(ctx, user)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	if user.ID == "" {
		t.Error("Expected user ID to be set")
	}
	if user.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}
}

func TestQueries_GetUserByUsername(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()

	user, err := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	found, err := tdb.Queries.GetUserByUsername(ctx, "testuser")
	if err != nil {
		t.Fatalf("GetUserByUsername() error = %v", err)
	}

	if found.ID != user.ID {
		t.Errorf("Expected user ID %s, got %s", user.ID, found.ID)
	}
}

func TestQueries_UserSettingsRoundTrip(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()

	user, err := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	// A user with no saved settings gets nil, not an empty struct
	settings, err := tdb.Queries.GetUserSettings(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserSettings() error = %v", err)
	}
	if settings != nil {
		t.Error("Expected nil settings for user with none saved")
	}

	enabled := true
	threshold := 0.85
	saved := &governance.UserSettings{
		ActionsEnabled:      &enabled,
		ConfidenceThreshold: &threshold,
		ChannelPermission: map[governance.Channel]bool{
			governance.ChannelEmail: true,
		},
	}
	if err := tdb.Queries.UpsertUserSettings(ctx, user.ID, saved); err != nil {
		t.Fatalf("UpsertUserSettings() error = %v", err)
	}

	settings, err = tdb.Queries.GetUserSettings(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserSettings() error = %v", err)
	}
	if settings == nil {
		t.Fatal("Expected saved settings")
	}
	if settings.ActionsEnabled == nil || !*settings.ActionsEnabled {
		t.Error("Expected actions_enabled to round-trip as true")
	}
	if settings.ConfidenceThreshold == nil || *settings.ConfidenceThreshold != 0.85 {
		t.Error("Expected confidence_threshold to round-trip")
	}
	if !settings.ChannelPermission[governance.ChannelEmail] {
		t.Error("Expected email channel permission to round-trip")
	}

	// Upsert replaces in place
	disabled := false
	saved.ActionsEnabled = &disabled
	if err := tdb.Queries.UpsertUserSettings(ctx, user.ID, saved); err != nil {
		t.Fatalf("UpsertUserSettings() second upsert error = %v", err)
	}
	settings, _ = tdb.Queries.GetUserSettings(ctx, user.ID)
	if settings.ActionsEnabled == nil || *settings.ActionsEnabled {
		t.Error("Expected second upsert to replace actions_enabled")
	}
}

func TestQueries_TeamPolicyRoundTrip(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()

	owner, err := testutil.CreateTestUser(ctx, tdb.Queries, "owner", "password123")
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	team, err := testutil.CreateTestTeam(ctx, tdb.Queries, owner.ID, "Test Team", "test-team")
	if err != nil {
		t.Fatalf("Failed to create test team: %v", err)
	}

	policy, err := tdb.Queries.GetTeamPolicy(ctx, team.ID)
	if err != nil {
		t.Fatalf("GetTeamPolicy() error = %v", err)
	}
	if policy != nil {
		t.Error("Expected nil policy for team with none saved")
	}

	minThreshold := 0.9
	saved := &governance.TeamPolicy{
		MinimumThreshold: &minThreshold,
		ChannelPermission: map[governance.Channel]bool{
			governance.ChannelFinancial: false,
		},
	}
	if err := tdb.Queries.UpsertTeamPolicy(ctx, team.ID, owner.ID, saved); err != nil {
		t.Fatalf("UpsertTeamPolicy() error = %v", err)
	}

	policy, err = tdb.Queries.GetTeamPolicy(ctx, team.ID)
	if err != nil {
		t.Fatalf("GetTeamPolicy() error = %v", err)
	}
	if policy == nil {
		t.Fatal("Expected saved policy")
	}
	if policy.MinimumThreshold == nil || *policy.MinimumThreshold != 0.9 {
		t.Error("Expected minimum_threshold to round-trip")
	}
	if allowed, ok := policy.ChannelPermission[governance.ChannelFinancial]; !ok || allowed {
		t.Error("Expected financial channel to round-trip as denied")
	}
}

func TestQueries_GetTeamForUser(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()

	user, err := testutil.CreateTestUser(ctx, tdb.Queries, "loner", "password123")
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	// No membership is nil, not an error
	member, err := tdb.Queries.GetTeamForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetTeamForUser() error = %v", err)
	}
	if member != nil {
		t.Error("Expected nil membership for user with no team")
	}

	team, err := testutil.CreateTestTeam(ctx, tdb.Queries, user.ID, "Test Team", "test-team")
	if err != nil {
		t.Fatalf("Failed to create test team: %v", err)
	}

	member, err = tdb.Queries.GetTeamForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetTeamForUser() error = %v", err)
	}
	if member == nil || member.TeamID != team.ID {
		t.Errorf("Expected membership in team %s, got %+v", team.ID, member)
	}
}

func createTestAction(t *testing.T, tdb *testutil.TestDB, userID string, expiresAt time.Time) *db.PendingAction {
	t.Helper()

	action := &db.PendingAction{
		UserID:          userID,
		ActionType:      "send_email",
		Payload:         map[string]interface{}{"to": "someone@example.com"},
		RiskTier:        governance.RiskHigh,
		ConfidenceScore: 0.92,
		ExpiresAt:       expiresAt,
	}
	if err := tdb.Queries.CreatePendingAction(context.Background(), action); err != nil {
		t.Fatalf("CreatePendingAction() error = %v", err)
	}
	return action
}

func TestQueries_GetPendingActionOwned(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()

	owner, _ := testutil.CreateTestUser(ctx, tdb.Queries, "owner", "password123")
	other, _ := testutil.CreateTestUser(ctx, tdb.Queries, "other", "password123")

	action := createTestAction(t, tdb, owner.ID, time.Now().Add(5*time.Minute))

	found, err := tdb.Queries.GetPendingActionOwned(ctx, action.ID, owner.ID)
	if err != nil {
		t.Fatalf("GetPendingActionOwned() error = %v", err)
	}
	if found.ID != action.ID {
		t.Errorf("Expected action %s, got %s", action.ID, found.ID)
	}
	if found.Payload["to"] != "someone@example.com" {
		t.Error("Expected payload to round-trip")
	}

	// Another user's lookup is indistinguishable from a missing row
	_, err = tdb.Queries.GetPendingActionOwned(ctx, action.ID, other.ID)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected sql.ErrNoRows for other user's lookup, got %v", err)
	}
}

func TestQueries_ConfirmPending(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()
	now := time.Now()

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")
	action := createTestAction(t, tdb, user.ID, now.Add(5*time.Minute))

	ok, err := tdb.Queries.ConfirmPending(ctx, action.ID, user.ID, now)
	if err != nil {
		t.Fatalf("ConfirmPending() error = %v", err)
	}
	if !ok {
		t.Fatal("Expected first confirm to succeed")
	}

	// Second confirm matches nothing: the row is no longer pending
	ok, err = tdb.Queries.ConfirmPending(ctx, action.ID, user.ID, now)
	if err != nil {
		t.Fatalf("ConfirmPending() second call error = %v", err)
	}
	if ok {
		t.Error("Expected second confirm to match no rows")
	}

	found, _ := tdb.Queries.GetPendingActionOwned(ctx, action.ID, user.ID)
	if found.Status != db.StatusConfirmed {
		t.Errorf("Expected status confirmed, got %s", found.Status)
	}
	if found.ConfirmedAt == nil {
		t.Error("Expected confirmed_at to be set")
	}
}

func TestQueries_ConfirmPending_Expired(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()
	now := time.Now()

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")
	action := createTestAction(t, tdb, user.ID, now.Add(-time.Minute))

	// The expires_at guard rejects confirms after the window closed
	ok, err := tdb.Queries.ConfirmPending(ctx, action.ID, user.ID, now)
	if err != nil {
		t.Fatalf("ConfirmPending() error = %v", err)
	}
	if ok {
		t.Error("Expected confirm of a timed-out action to match no rows")
	}

	flipped, err := tdb.Queries.ExpireIfTimedOut(ctx, action.ID, now)
	if err != nil {
		t.Fatalf("ExpireIfTimedOut() error = %v", err)
	}
	if !flipped {
		t.Error("Expected timed-out action to flip to expired")
	}

	found, _ := tdb.Queries.GetPendingActionOwned(ctx, action.ID, user.ID)
	if found.Status != db.StatusExpired {
		t.Errorf("Expected status expired, got %s", found.Status)
	}
}

func TestQueries_CancelPending(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()
	now := time.Now()

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")
	action := createTestAction(t, tdb, user.ID, now.Add(5*time.Minute))

	ok, err := tdb.Queries.CancelPending(ctx, action.ID, user.ID, "wrong_action", now)
	if err != nil {
		t.Fatalf("CancelPending() error = %v", err)
	}
	if !ok {
		t.Fatal("Expected cancel to succeed")
	}

	found, _ := tdb.Queries.GetPendingActionOwned(ctx, action.ID, user.ID)
	if found.Status != db.StatusCancelled {
		t.Errorf("Expected status cancelled, got %s", found.Status)
	}
	if found.RejectionReason == nil || *found.RejectionReason != "wrong_action" {
		t.Error("Expected rejection reason to be recorded")
	}
	if found.CancelledAt == nil {
		t.Error("Expected cancelled_at to be set")
	}

	// Confirm after cancel loses
	ok, _ = tdb.Queries.ConfirmPending(ctx, action.ID, user.ID, now)
	if ok {
		t.Error("Expected confirm of a cancelled action to match no rows")
	}
}

func TestQueries_SweepExpired(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()
	now := time.Now()

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")

	expired1 := createTestAction(t, tdb, user.ID, now.Add(-2*time.Minute))
	expired2 := createTestAction(t, tdb, user.ID, now.Add(-time.Minute))
	alive := createTestAction(t, tdb, user.ID, now.Add(10*time.Minute))

	ids, err := tdb.Queries.SweepExpired(ctx, now)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("Expected 2 swept ids, got %d", len(ids))
	}

	swept := map[string]bool{ids[0]: true, ids[1]: true}
	if !swept[expired1.ID] || !swept[expired2.ID] {
		t.Error("Expected both timed-out actions to be swept")
	}

	found, _ := tdb.Queries.GetPendingActionOwned(ctx, alive.ID, user.ID)
	if found.Status != db.StatusPending {
		t.Errorf("Expected unexpired action to stay pending, got %s", found.Status)
	}

	// Idempotent: a second sweep matches nothing
	ids, err = tdb.Queries.SweepExpired(ctx, now)
	if err != nil {
		t.Fatalf("SweepExpired() second call error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Expected second sweep to match nothing, got %d ids", len(ids))
	}
}

func TestQueries_RecordExecutionResult(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()
	now := time.Now()

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")
	action := createTestAction(t, tdb, user.ID, now.Add(5*time.Minute))

	// Only a confirmed action can record a result
	if err := tdb.Queries.RecordExecutionResult(ctx, action.ID, db.StatusExecuted, map[string]interface{}{"ok": true}); err != nil {
		t.Fatalf("RecordExecutionResult() error = %v", err)
	}
	found, _ := tdb.Queries.GetPendingActionOwned(ctx, action.ID, user.ID)
	if found.Status != db.StatusPending {
		t.Errorf("Expected pending action to be untouched, got %s", found.Status)
	}

	if ok, _ := tdb.Queries.ConfirmPending(ctx, action.ID, user.ID, now); !ok {
		t.Fatal("Expected confirm to succeed")
	}
	result := map[string]interface{}{"provider_message_id": "msg-1"}
	if err := tdb.Queries.RecordExecutionResult(ctx, action.ID, db.StatusExecuted, result); err != nil {
		t.Fatalf("RecordExecutionResult() error = %v", err)
	}

	found, _ = tdb.Queries.GetPendingActionOwned(ctx, action.ID, user.ID)
	if found.Status != db.StatusExecuted {
		t.Errorf("Expected status executed, got %s", found.Status)
	}
	if found.ExecutionResult["provider_message_id"] != "msg-1" {
		t.Error("Expected execution result to round-trip")
	}
}

func TestQueries_FeedbackSummary(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")

	reason := "wrong_action"
	records := []*db.FeedbackRecord{
		{UserID: user.ID, ActionID: "a1", DecisionType: "confirmation", TimeToDecisionMS: 1000},
		{UserID: user.ID, ActionID: "a2", DecisionType: "confirmation", TimeToDecisionMS: 3000},
		{UserID: user.ID, ActionID: "a3", DecisionType: "rejection", RejectionReason: &reason, TimeToDecisionMS: 2000},
	}
	for _, record := range records {
		if err := tdb.Queries.CreateFeedback(ctx, record); err != nil {
			t.Fatalf("CreateFeedback() error = %v", err)
		}
	}

	summary, err := tdb.Queries.GetFeedbackSummary(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetFeedbackSummary() error = %v", err)
	}

	if summary.TotalDecisions != 3 {
		t.Errorf("Expected 3 decisions, got %d", summary.TotalDecisions)
	}
	if summary.Confirmations != 2 {
		t.Errorf("Expected 2 confirmations, got %d", summary.Confirmations)
	}
	if summary.Rejections != 1 {
		t.Errorf("Expected 1 rejection, got %d", summary.Rejections)
	}
	if summary.AvgTimeToDecisionMS != 2000 {
		t.Errorf("Expected avg 2000ms, got %d", summary.AvgTimeToDecisionMS)
	}
	if summary.RejectionReasonCount["wrong_action"] != 1 {
		t.Error("Expected wrong_action to be counted")
	}
}

func TestQueries_APIKeys(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")
	other, _ := testutil.CreateTestUser(ctx, tdb.Queries, "other", "password123")

	key := &db.APIKey{
		KeyHash:   "hash",
		KeyPrefix: "asp_12345678",
		UserID:    user.ID,
		Name:      "agent",
	}
	if err := tdb.Queries.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey() error = %v", err)
	}

	found, err := tdb.Queries.GetAPIKeyByPrefix(ctx, "asp_12345678")
	if err != nil {
		t.Fatalf("GetAPIKeyByPrefix() error = %v", err)
	}
	if found.UserID != user.ID {
		t.Errorf("Expected key bound to %s, got %s", user.ID, found.UserID)
	}

	if err := tdb.Queries.UpdateAPIKeyLastUsed(ctx, key.ID); err != nil {
		t.Fatalf("UpdateAPIKeyLastUsed() error = %v", err)
	}
	found, _ = tdb.Queries.GetAPIKeyByPrefix(ctx, "asp_12345678")
	if found.LastUsedAt == nil {
		t.Error("Expected last_used_at to be set")
	}

	// Delete is owner-scoped
	if err := tdb.Queries.DeleteAPIKey(ctx, key.ID, other.ID); err != nil {
		t.Fatalf("DeleteAPIKey() error = %v", err)
	}
	if _, err := tdb.Queries.GetAPIKeyByPrefix(ctx, "asp_12345678"); err != nil {
		t.Fatal("Expected key to survive another user's delete")
	}

	if err := tdb.Queries.DeleteAPIKey(ctx, key.ID, user.ID); err != nil {
		t.Fatalf("DeleteAPIKey() error = %v", err)
	}
	if _, err := tdb.Queries.GetAPIKeyByPrefix(ctx, "asp_12345678"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected sql.ErrNoRows after owner delete, got %v", err)
	}
}

func TestQueries_AuditLogs(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")

	entry := &db.AuditLog{
		UserID:       user.ID,
		Action:       "agent.action.proposed",
		ResourceType: "send_email",
		Details:      map[string]interface{}{"risk_tier": "high"},
	}
	if err := tdb.Queries.CreateAuditLog(ctx, entry); err != nil {
		t.Fatalf("CreateAuditLog() error = %v", err)
	}

	logs, err := tdb.Queries.ListAuditLogs(ctx, &user.ID, nil, nil, 10)
	if err != nil {
		t.Fatalf("ListAuditLogs() error = %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("Expected 1 audit log, got %d", len(logs))
	}
	if logs[0].Action != "agent.action.proposed" {
		t.Errorf("Expected action agent.action.proposed, got %s", logs[0].Action)
	}
	if logs[0].Details["risk_tier"] != "high" {
		t.Error("Expected details to round-trip")
	}

	// Action filter
	otherAction := "agent.action.confirmed"
	logs, err = tdb.Queries.ListAuditLogs(ctx, &user.ID, &otherAction, nil, 10)
	if err != nil {
		t.Fatalf("ListAuditLogs() with filter error = %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("Expected no logs for unmatched action filter, got %d", len(logs))
	}
}

func TestQueries_AuditLogsAppendOnly(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	ctx := context.Background()

	user, _ := testutil.CreateTestUser(ctx, tdb.Queries, "testuser", "password123")

	entry := &db.AuditLog{
		UserID:       user.ID,
		Action:       "agent.action.proposed",
		ResourceType: "send_email",
	}
	if err := tdb.Queries.CreateAuditLog(ctx, entry); err != nil {
		t.Fatalf("CreateAuditLog() error = %v", err)
	}

	// The trigger blocks rewriting history even for the table owner,
	// which is the role these tests connect as
	if _, err := tdb.DB.ExecContext(ctx,
		`UPDATE audit_logs SET action = 'tampered' WHERE id = $1`, entry.ID); err == nil {
		t.Error("Expected UPDATE on audit_logs to be rejected")
	}
	if _, err := tdb.DB.ExecContext(ctx,
		`DELETE FROM audit_logs WHERE id = $1`, entry.ID); err == nil {
		t.Error("Expected DELETE on audit_logs to be rejected")
	}

	logs, err := tdb.Queries.ListAuditLogs(ctx, &user.ID, nil, nil, 10)
	if err != nil {
		t.Fatalf("ListAuditLogs() error = %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "agent.action.proposed" {
		t.Error("Expected the original entry to survive untouched")
	}
}
