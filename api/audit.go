package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of key-store change being logged.
type AuditEvent string

const (
	AuditPKIInitialized AuditEvent = "pki_initialized"
	AuditCABuilt        AuditEvent = "ca_built"
	AuditCertIssued     AuditEvent = "cert_issued"
	AuditCertRevoked    AuditEvent = "cert_revoked"
	AuditCertRenewed    AuditEvent = "cert_renewed"
	AuditCRLGenerated   AuditEvent = "crl_generated"

	AuditCAPasswordThrottled AuditEvent = "ca_password_throttled"
	AuditAuthFailed          AuditEvent = "auth_failed"
)

// auditLogger wraps slog.Logger for structured audit logging. Passwords
// are never passed to it.
type auditLogger struct {
	logger  *slog.Logger
	webhook *auditWebhook
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit log entry. err is the operation result.
func (al *auditLogger) log(event AuditEvent, r *http.Request, err error, attrs ...slog.Attr) {
	ts := time.Now().UTC().Format(time.RFC3339)
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", ts),
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
		baseAttrs = append(baseAttrs, slog.String("outcome", outcome), slog.String("error", err.Error()))
	} else {
		baseAttrs = append(baseAttrs, slog.String("outcome", outcome))
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)

	if al.webhook != nil {
		evt := webhookEvent{
			Event:      string(event),
			Outcome:    outcome,
			RemoteAddr: r.RemoteAddr,
			Timestamp:  ts,
		}
		if err != nil {
			evt.Error = err.Error()
		}
		if len(attrs) > 0 {
			evt.Attrs = make(map[string]string, len(attrs))
			for _, a := range attrs {
				evt.Attrs[a.Key] = a.Value.String()
			}
		}
		al.webhook.enqueue(evt)
	}
}
