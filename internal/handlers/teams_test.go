package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/aspira-app/aspira/api/internal/auth"
	testutil "github.com/aspira-app/aspira/api/internal/testing"
)

/* createTeamViaAPI creates a team through the API and returns its id */
func createTeamViaAPI(t *testing.T, client *testutil.TestClient, name, slug string) string {
	t.Helper()

	resp, err := client.Post("/api/v1/teams", map[string]interface{}{
		"name": name,
		"slug": slug,
	})
	if err != nil {
		t.Fatalf("Failed to create team: %v", err)
	}
	defer resp.Body.Close()
	testutil.AssertStatus(t, resp, http.StatusCreated)

	var team map[string]interface{}
	if err := testutil.ParseResponse(t, resp, &team); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	teamID, _ := team["id"].(string)
	if teamID == "" {
		t.Fatal("Expected team id in response")
	}
	return teamID
}

/* asUser swaps the client's token to a freshly created user and returns
   a restore func for the original identity */
func asUser(t *testing.T, client *testutil.TestClient, username string) (string, func()) {
	t.Helper()

	ctx := context.Background()
	prevToken, prevUserID := client.Token, client.UserID

	user, err := testutil.CreateTestUser(ctx, client.Queries, username, "password123")
	if err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	token, err := auth.GenerateToken(user.ID, user.Username, user.IsAdmin)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	client.Token = token
	client.UserID = user.ID

	return user.ID, func() {
		client.Token = prevToken
		client.UserID = prevUserID
	}
}

func TestTeamHandlers_CreateTeam(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	client := testutil.NewTestClient(t, tdb.Queries)
	defer client.Server.Close()

	ctx := context.Background()
	if err := client.Authenticate(ctx, "owner", "password123"); err != nil {
		t.Fatalf("Failed to authenticate: %v", err)
	}

	tests := []struct {
		name           string
		request        map[string]interface{}
		expectedStatus int
	}{
		{
			name:           "successful creation",
			request:        map[string]interface{}{"name": "Acme", "slug": "acme"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing name",
			request:        map[string]interface{}{"slug": "no-name"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid slug",
			request:        map[string]interface{}{"name": "Bad Slug", "slug": "Bad Slug!"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.Post("/api/v1/teams", tt.request)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			defer resp.Body.Close()
			testutil.AssertStatus(t, resp, tt.expectedStatus)
		})
	}

	t.Run("creator becomes owner", func(t *testing.T) {
		teamID := createTeamViaAPI(t, client, "Owned", "owned")

		resp, err := client.Get("/api/v1/teams/" + teamID + "/members")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		testutil.AssertStatus(t, resp, http.StatusOK)

		var members []map[string]interface{}
		if err := testutil.ParseResponse(t, resp, &members); err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}
		if len(members) != 1 {
			t.Fatalf("Expected 1 member, got %d", len(members))
		}
		if members[0]["role"] != "owner" {
			t.Errorf("Expected owner role, got %v", members[0]["role"])
		}
	})
}

func TestTeamHandlers_GetTeam(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	client := testutil.NewTestClient(t, tdb.Queries)
	defer client.Server.Close()

	ctx := context.Background()
	if err := client.Authenticate(ctx, "owner", "password123"); err != nil {
		t.Fatalf("Failed to authenticate: %v", err)
	}
	teamID := createTeamViaAPI(t, client, "Acme", "acme")

	t.Run("member sees the team", func(t *testing.T) {
		resp, err := client.Get("/api/v1/teams/" + teamID)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		testutil.AssertStatus(t, resp, http.StatusOK)

		var team map[string]interface{}
		if err := testutil.ParseResponse(t, resp, &team); err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}
		if team["slug"] != "acme" {
			t.Errorf("Expected slug acme, got %v", team["slug"])
		}
	})

	t.Run("non-member reads as missing", func(t *testing.T) {
		_, restore := asUser(t, client, "outsider")
		defer restore()

		resp, err := client.Get("/api/v1/teams/" + teamID)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		testutil.AssertStatus(t, resp, http.StatusNotFound)
	})
}

func TestTeamHandlers_AddMember(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	client := testutil.NewTestClient(t, tdb.Queries)
	defer client.Server.Close()

	ctx := context.Background()
	if err := client.Authenticate(ctx, "owner", "password123"); err != nil {
		t.Fatalf("Failed to authenticate: %v", err)
	}
	teamID := createTeamViaAPI(t, client, "Acme", "acme")

	newUserID, restore := asUser(t, client, "newmember")
	restore()

	t.Run("owner adds a member", func(t *testing.T) {
		resp, err := client.Post("/api/v1/teams/"+teamID+"/members", map[string]interface{}{
			"user_id": newUserID,
		})
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		testutil.AssertStatus(t, resp, http.StatusCreated)

		var member map[string]interface{}
		if err := testutil.ParseResponse(t, resp, &member); err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}
		if member["role"] != "member" {
			t.Errorf("Expected default role member, got %v", member["role"])
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		resp, err := client.Post("/api/v1/teams/"+teamID+"/members", map[string]interface{}{
			"user_id": "00000000-0000-0000-0000-000000000000",
		})
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		testutil.AssertStatus(t, resp, http.StatusNotFound)
	})

	t.Run("invalid role", func(t *testing.T) {
		extraID, restore := asUser(t, client, "extramember")
		restore()

		resp, err := client.Post("/api/v1/teams/"+teamID+"/members", map[string]interface{}{
			"user_id": extraID,
			"role":    "superuser",
		})
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		testutil.AssertStatus(t, resp, http.StatusBadRequest)
	})

	t.Run("plain member cannot add", func(t *testing.T) {
		otherID, restoreOther := asUser(t, client, "wannabe")
		restoreOther()

		// Act as the member added above, who has the member role
		user, err := tdb.Queries.GetUserByID(ctx, newUserID)
		if err != nil {
			t.Fatalf("Failed to load member: %v", err)
		}
		token, err := auth.GenerateToken(user.ID, user.Username, user.IsAdmin)
		if err != nil {
			t.Fatalf("Failed to generate token: %v", err)
		}
		prevToken := client.Token
		client.Token = token
		defer func() { client.Token = prevToken }()

		resp, err := client.Post("/api/v1/teams/"+teamID+"/members", map[string]interface{}{
			"user_id": otherID,
		})
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		testutil.AssertStatus(t, resp, http.StatusForbidden)
	})
}

func TestTeamHandlers_TeamPolicy(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	client := testutil.NewTestClient(t, tdb.Queries)
	defer client.Server.Close()

	ctx := context.Background()
	if err := client.Authenticate(ctx, "owner", "password123"); err != nil {
		t.Fatalf("Failed to authenticate: %v", err)
	}
	teamID := createTeamViaAPI(t, client, "Acme", "acme")

	t.Run("empty before first save", func(t *testing.T) {
		resp, err := client.Get("/api/v1/teams/" + teamID + "/policy")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		testutil.AssertStatus(t, resp, http.StatusOK)

		var policy map[string]interface{}
		if err := testutil.ParseResponse(t, resp, &policy); err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}
		if len(policy) != 0 {
			t.Errorf("Expected empty policy, got %v", policy)
		}
	})

	t.Run("invalid threshold", func(t *testing.T) {
		resp, err := client.Put("/api/v1/teams/"+teamID+"/policy", map[string]interface{}{
			"minimum_threshold": -0.1,
		})
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		testutil.AssertStatus(t, resp, http.StatusBadRequest)
	})

	t.Run("owner saves and reads back", func(t *testing.T) {
		resp, err := client.Put("/api/v1/teams/"+teamID+"/policy", map[string]interface{}{
			"minimum_threshold":  0.9,
			"channel_permission": map[string]bool{"financial": false},
		})
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		testutil.AssertStatus(t, resp, http.StatusOK)

		resp, err = client.Get("/api/v1/teams/" + teamID + "/policy")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()

		var policy map[string]interface{}
		if err := testutil.ParseResponse(t, resp, &policy); err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}
		if policy["minimum_threshold"] != 0.9 {
			t.Errorf("Expected threshold 0.9, got %v", policy["minimum_threshold"])
		}
	})

	t.Run("member can read but not write", func(t *testing.T) {
		memberID, restore := asUser(t, client, "reader")
		restore()

		// The owner adds the reader as a plain member
		resp, err := client.Post("/api/v1/teams/"+teamID+"/members", map[string]interface{}{
			"user_id": memberID,
		})
		if err != nil {
			t.Fatalf("Failed to add member: %v", err)
		}
		resp.Body.Close()

		user, err := tdb.Queries.GetUserByID(ctx, memberID)
		if err != nil {
			t.Fatalf("Failed to load member: %v", err)
		}
		token, err := auth.GenerateToken(user.ID, user.Username, user.IsAdmin)
		if err != nil {
			t.Fatalf("Failed to generate token: %v", err)
		}
		prevToken := client.Token
		client.Token = token
		defer func() { client.Token = prevToken }()

		resp, err = client.Get("/api/v1/teams/" + teamID + "/policy")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		testutil.AssertStatus(t, resp, http.StatusOK)

		resp, err = client.Put("/api/v1/teams/"+teamID+"/policy", map[string]interface{}{
			"minimum_threshold": 0.5,
		})
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		testutil.AssertStatus(t, resp, http.StatusForbidden)
	})
}
