package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/calybase/calybase-backend/internal/activity/domain"
)

func TestWrappers_CanonicalPairs(t *testing.T) {
	l := newTestLogger(&memoryStore{}, LoggerOptions{BufferSize: 100})
	ctx := context.Background()

	tests := []struct {
		name     string
		entry    domain.Entry
		action   string
		category string
	}{
		{"login ok", l.LogLogin(ctx, "", true, nil), "login_success", domain.CategoryAuthentication},
		{"login failed", l.LogLogin(ctx, "google", false, nil), "login_failed", domain.CategoryAuthentication},
		{"logout", l.LogLogout(ctx, "", nil), "logout", domain.CategoryAuthentication},
		{"timeout", l.LogSessionTimeout(ctx, nil), "session_timeout", domain.CategoryAuthentication},
		{"member", l.LogMemberAction(ctx, "delete", Details{"id": "m1"}, nil), "member_delete", domain.CategoryMemberManagement},
		{"import ok", l.LogExcelImport(ctx, "roster.xlsx", 12, true, nil), "excel_import_success", domain.CategoryDataImport},
		{"import failed", l.LogExcelImport(ctx, "roster.xlsx", 0, false, nil), "excel_import_failed", domain.CategoryDataImport},
		{"config", l.LogSystemConfigChange(ctx, "memberManagement", nil, nil), "system_config_change", domain.CategoryAdministration},
		{"user", l.LogUserManagement(ctx, "delete", nil, nil), "user_delete", domain.CategoryUserManagement},
		{"data access", l.LogDataAccess(ctx, "membres", "", nil), "data_view", domain.CategoryDataAccess},
		{"export", l.LogDataExport(ctx, "csv", "audit_logs", 3, nil), "data_export", domain.CategoryDataAccess},
		{"security", l.LogSecurityEvent(ctx, "unauthorized_access", "", nil), "security_unauthorized_access", domain.CategorySecurity},
		{"page", l.LogPageVisit(ctx, "dashboard", nil), "page_visit", domain.CategoryNavigation},
		{"error", l.LogError(ctx, "firestore", "deadline exceeded", nil), "error", domain.CategorySystem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.action, tt.entry.Action)
			assert.Equal(t, tt.category, tt.entry.Category)
		})
	}
}

func TestWrappers_DetailsDefaultsAndOverrides(t *testing.T) {
	l := newTestLogger(&memoryStore{}, LoggerOptions{BufferSize: 100})
	ctx := context.Background()

	login := l.LogLogin(ctx, "", true, nil)
	assert.Equal(t, "email", login.Details["method"])
	assert.Equal(t, true, login.Details["success"])

	sec := l.LogSecurityEvent(ctx, "brute_force", "", Details{"ip": "10.0.0.1"})
	assert.Equal(t, "medium", sec.Details["severity"])
	assert.Equal(t, "10.0.0.1", sec.Details["ip"])

	// Caller details win over the wrapper's own keys.
	out := l.LogLogout(ctx, "manual", Details{"reason": "idle"})
	assert.Equal(t, "idle", out.Details["reason"])

	imp := l.LogExcelImport(ctx, "roster.csv", 7, true, Details{"skipped": 1})
	assert.Equal(t, Details{"filename": "roster.csv", "rowCount": 7, "success": true, "skipped": 1}, imp.Details)
}
