package service

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func auditDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE audit_events (
		audit_id   TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		user_id    TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL DEFAULT '',
		case_id    TEXT NOT NULL DEFAULT '',
		detail     TEXT NOT NULL DEFAULT '',
		trace_id   TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func TestAuditServicePersistsEvents(t *testing.T) {
	db := auditDB(t)
	svc := NewAuditService(db)

	svc.Record(context.Background(), AuditEvent{
		Type:      AuditKillSwitch,
		UserID:    "1",
		SessionID: "sess-1",
		CaseID:    "10300",
		Detail:    "response discarded",
		TraceID:   "trace-abc",
	})

	var eventType, userID, caseID, traceID, createdAt string
	row := db.QueryRow(`SELECT event_type, user_id, case_id, trace_id, created_at FROM audit_events`)
	if err := row.Scan(&eventType, &userID, &caseID, &traceID, &createdAt); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if eventType != AuditKillSwitch || userID != "1" || caseID != "10300" || traceID != "trace-abc" {
		t.Fatalf("row mismatch: %s %s %s %s", eventType, userID, caseID, traceID)
	}
	if createdAt == "" {
		t.Fatal("created_at must be set")
	}
}

func TestAuditServiceInsertFailureIsSwallowed(t *testing.T) {
	db := auditDB(t)
	if _, err := db.Exec(`DROP TABLE audit_events`); err != nil {
		t.Fatalf("drop: %v", err)
	}
	svc := NewAuditService(db)

	// Must not panic or error; audit writes never fail the request.
	svc.Record(context.Background(), AuditEvent{Type: AuditForcedSync, UserID: "ops"})
}
