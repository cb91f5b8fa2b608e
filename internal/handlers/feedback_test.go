package handlers

import (
	"context"
	"net/http"
	"testing"

	testutil "github.com/aspira-app/aspira/api/internal/testing"
)

func TestFeedbackHandlers_SubmitFeedback(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	client := testutil.NewTestClient(t, tdb.Queries)
	defer client.Server.Close()

	ctx := context.Background()
	if err := client.Authenticate(ctx, "testuser", "password123"); err != nil {
		t.Fatalf("Failed to authenticate: %v", err)
	}
	enableAgentActions(t, client, "email")

	pendingID := proposeAction(t, client, "send_email", 0.9)

	decidedID := proposeAction(t, client, "send_email", 0.9)
	resp, err := client.Post("/api/v1/actions/"+decidedID+"/confirm", nil)
	if err != nil {
		t.Fatalf("Failed to confirm action: %v", err)
	}
	resp.Body.Close()

	tests := []struct {
		name           string
		request        map[string]interface{}
		expectedStatus int
	}{
		{
			name: "feedback on decided action",
			request: map[string]interface{}{
				"action_id": decidedID,
				"rating":    5,
				"comment":   "did exactly what I wanted",
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "undecided action conflicts",
			request: map[string]interface{}{
				"action_id": pendingID,
				"rating":    3,
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "rating out of range",
			request: map[string]interface{}{
				"action_id": decidedID,
				"rating":    11,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "invalid action id",
			request: map[string]interface{}{
				"action_id": "not-a-uuid",
				"rating":    4,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown action",
			request: map[string]interface{}{
				"action_id": "00000000-0000-0000-0000-000000000000",
				"rating":    4,
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.Post("/api/v1/feedback", tt.request)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			defer resp.Body.Close()
			testutil.AssertStatus(t, resp, tt.expectedStatus)
		})
	}
}

func TestFeedbackHandlers_GetFeedbackSummary(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	client := testutil.NewTestClient(t, tdb.Queries)
	defer client.Server.Close()

	ctx := context.Background()
	if err := client.Authenticate(ctx, "testuser", "password123"); err != nil {
		t.Fatalf("Failed to authenticate: %v", err)
	}
	enableAgentActions(t, client, "email")

	// One confirmation and one categorized rejection
	confirmID := proposeAction(t, client, "send_email", 0.9)
	resp, err := client.Post("/api/v1/actions/"+confirmID+"/confirm", nil)
	if err != nil {
		t.Fatalf("Failed to confirm: %v", err)
	}
	resp.Body.Close()

	cancelID := proposeAction(t, client, "send_email", 0.9)
	resp, err = client.Post("/api/v1/actions/"+cancelID+"/cancel", map[string]interface{}{
		"reason": "that's private, don't share it",
	})
	if err != nil {
		t.Fatalf("Failed to cancel: %v", err)
	}
	resp.Body.Close()

	resp, err = client.Get("/api/v1/feedback/summary")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	testutil.AssertStatus(t, resp, http.StatusOK)

	var summary map[string]interface{}
	if err := testutil.ParseResponse(t, resp, &summary); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if summary["total_decisions"] != float64(2) {
		t.Errorf("Expected 2 decisions, got %v", summary["total_decisions"])
	}
	if summary["confirmations"] != float64(1) {
		t.Errorf("Expected 1 confirmation, got %v", summary["confirmations"])
	}
	if summary["rejections"] != float64(1) {
		t.Errorf("Expected 1 rejection, got %v", summary["rejections"])
	}

	reasons, _ := summary["rejection_reason_counts"].(map[string]interface{})
	if reasons["privacy"] != float64(1) {
		t.Errorf("Expected 1 privacy rejection, got %v", reasons["privacy"])
	}
}
