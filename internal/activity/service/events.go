package service

import (
	"context"

	"github.com/calybase/calybase-backend/internal/activity/domain"
)

// Details is the free-form payload attached to an audit entry.
type Details = map[string]interface{}

// withBase returns base overlaid with extra. Keys in extra win.
func withBase(base, extra Details) Details {
	out := make(Details, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func (l *ActivityLogger) LogLogin(ctx context.Context, method string, success bool, details Details) domain.Entry {
	if method == "" {
		method = "email"
	}
	action := "login_success"
	if !success {
		action = "login_failed"
	}
	return l.LogActivity(ctx, action, domain.CategoryAuthentication,
		withBase(Details{"method": method, "success": success}, details), nil)
}

func (l *ActivityLogger) LogLogout(ctx context.Context, reason string, details Details) domain.Entry {
	if reason == "" {
		reason = "manual"
	}
	return l.LogActivity(ctx, "logout", domain.CategoryAuthentication,
		withBase(Details{"reason": reason}, details), nil)
}

func (l *ActivityLogger) LogSessionTimeout(ctx context.Context, details Details) domain.Entry {
	return l.LogActivity(ctx, "session_timeout", domain.CategoryAuthentication, withBase(nil, details), nil)
}

// LogMemberAction records member_<action>, e.g. member_create or member_delete.
func (l *ActivityLogger) LogMemberAction(ctx context.Context, action string, memberData, details Details) domain.Entry {
	if memberData == nil {
		memberData = Details{}
	}
	return l.LogActivity(ctx, "member_"+action, domain.CategoryMemberManagement,
		withBase(Details{"memberData": memberData}, details), nil)
}

func (l *ActivityLogger) LogExcelImport(ctx context.Context, filename string, rowCount int, success bool, details Details) domain.Entry {
	action := "excel_import_success"
	if !success {
		action = "excel_import_failed"
	}
	return l.LogActivity(ctx, action, domain.CategoryDataImport,
		withBase(Details{"filename": filename, "rowCount": rowCount, "success": success}, details), nil)
}

func (l *ActivityLogger) LogSystemConfigChange(ctx context.Context, section string, changes, details Details) domain.Entry {
	if changes == nil {
		changes = Details{}
	}
	return l.LogActivity(ctx, "system_config_change", domain.CategoryAdministration,
		withBase(Details{"configSection": section, "changes": changes}, details), nil)
}

func (l *ActivityLogger) LogUserManagement(ctx context.Context, action string, targetUser, details Details) domain.Entry {
	if targetUser == nil {
		targetUser = Details{}
	}
	return l.LogActivity(ctx, "user_"+action, domain.CategoryUserManagement,
		withBase(Details{"targetUser": targetUser}, details), nil)
}

func (l *ActivityLogger) LogDataAccess(ctx context.Context, resource, action string, details Details) domain.Entry {
	if action == "" {
		action = "view"
	}
	return l.LogActivity(ctx, "data_"+action, domain.CategoryDataAccess,
		withBase(Details{"resource": resource}, details), nil)
}

func (l *ActivityLogger) LogDataExport(ctx context.Context, format, resourceType string, recordCount int, details Details) domain.Entry {
	return l.LogActivity(ctx, "data_export", domain.CategoryDataAccess,
		withBase(Details{"format": format, "resourceType": resourceType, "recordCount": recordCount}, details), nil)
}

// LogSecurityEvent records security_<eventType> with a severity, "medium" if empty.
func (l *ActivityLogger) LogSecurityEvent(ctx context.Context, eventType, severity string, details Details) domain.Entry {
	if severity == "" {
		severity = "medium"
	}
	return l.LogActivity(ctx, "security_"+eventType, domain.CategorySecurity,
		withBase(Details{"severity": severity}, details), nil)
}

func (l *ActivityLogger) LogPageVisit(ctx context.Context, pageName string, details Details) domain.Entry {
	return l.LogActivity(ctx, "page_visit", domain.CategoryNavigation,
		withBase(Details{"pageName": pageName}, details), nil)
}

func (l *ActivityLogger) LogError(ctx context.Context, errorType, errorMessage string, details Details) domain.Entry {
	return l.LogActivity(ctx, "error", domain.CategorySystem,
		withBase(Details{"errorType": errorType, "errorMessage": errorMessage}, details), nil)
}
