package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aspira-app/aspira/api/internal/auth"
	"github.com/aspira-app/aspira/api/internal/db"
)

/* AuditLogHandlers handles audit log endpoints */
type AuditLogHandlers struct {
	queries *db.Queries
}

/* NewAuditLogHandlers creates new audit log handlers */
func NewAuditLogHandlers(queries *db.Queries) *AuditLogHandlers {
	return &AuditLogHandlers{
		queries: queries,
	}
}

/* ListAuditLogs lists audit logs with filtering. Admins see everything;
   regular users see only their own trail. */
func (h *AuditLogHandlers) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"), nil)
		return
	}

	user, err := h.queries.GetUserByID(r.Context(), userID)
	if err != nil {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"), nil)
		return
	}

	limitStr := r.URL.Query().Get("limit")
	limit := 100
	if limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	filterUserID := r.URL.Query().Get("user_id")
	filterAction := r.URL.Query().Get("action")
	filterResourceType := r.URL.Query().Get("resource_type")

	var userIDFilter, actionFilter, resourceTypeFilter *string
	if user.IsAdmin {
		if filterUserID != "" {
			userIDFilter = &filterUserID
		}
	} else {
		/* Non-admins are pinned to their own entries */
		userIDFilter = &userID
	}
	if filterAction != "" {
		actionFilter = &filterAction
	}
	if filterResourceType != "" {
		resourceTypeFilter = &filterResourceType
	}

	logs, err := h.queries.ListAuditLogs(r.Context(), userIDFilter, actionFilter, resourceTypeFilter, limit)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, err, nil)
		return
	}
	if logs == nil {
		logs = []db.AuditLog{}
	}

	WriteSuccess(w, logs, http.StatusOK)
}

/* LogAuditEvent is a helper function to log audit events from handlers */
func LogAuditEvent(ctx context.Context, queries *db.Queries, userID, action, resourceType string, resourceID *string, details map[string]interface{}, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var ipAddress, userAgent *string
		if r != nil {
			ip := r.RemoteAddr
			ipAddress = &ip
			ua := r.UserAgent()
			userAgent = &ua
		}

		auditLog := &db.AuditLog{
			UserID:       userID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			Details:      details,
			IPAddress:    ipAddress,
			UserAgent:    userAgent,
		}

		/* Ignore errors - audit logging should not break operations */
		_ = queries.CreateAuditLog(ctx, auditLog)
	}()
}
