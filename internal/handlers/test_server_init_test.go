package handlers

import (
	"github.com/aspira-app/aspira/api/internal/testing"
)

func init() {
	// Register server setup function to avoid import cycles
	// This file is only compiled when building tests
	testing.DefaultServerSetup = SetupTestServer
}
