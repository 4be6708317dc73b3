package service

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"
)

// Audit event types. Authorization failures get their own types so they
// are never mistaken for plain "no results" in the trail.
const (
	AuditKillSwitch   = "authz.kill_switch"
	AuditForbiddenDoc = "authz.forbidden_document"
	AuditForcedSync   = "sync.forced"
	AuditSyncPartial  = "sync.partial_failure"
)

// AuditEvent is one security-relevant occurrence.
type AuditEvent struct {
	Type      string
	UserID    string
	SessionID string
	CaseID    string
	Detail    string
	TraceID   string
}

// SecurityLog is the sink for audit events. The pipeline and resolver
// depend on this interface; tests record events in memory.
type SecurityLog interface {
	Record(ctx context.Context, ev AuditEvent)
}

// AuditService persists audit events to the audit database. Writes are
// best-effort: a failed insert is logged and never fails the request
// that triggered it.
type AuditService struct {
	db *sql.DB
}

func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

func (s *AuditService) Record(ctx context.Context, ev AuditEvent) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events
			(audit_id, event_type, user_id, session_id, case_id, detail, trace_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), ev.Type, ev.UserID, ev.SessionID, ev.CaseID, ev.Detail, ev.TraceID, now)
	if err != nil {
		log.Printf("audit insert failed (type=%s user=%s): %v", ev.Type, ev.UserID, err)
	}
	log.Printf("security event type=%s user=%s case=%s detail=%s", ev.Type, ev.UserID, ev.CaseID, ev.Detail)
}

// NopSecurityLog discards events; used when no audit DB is configured.
type NopSecurityLog struct{}

func (NopSecurityLog) Record(context.Context, AuditEvent) {}
