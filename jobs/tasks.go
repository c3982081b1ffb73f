// Package jobs carries the asynq task definitions plus the worker and
// client wrappers around them. The HTTP process only enqueues; the worker
// binary consumes.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeRoleAlert fans a workflow event out to every user holding a
	// role in the organization.
	TaskTypeRoleAlert = "notify:role_alert"
	// TaskTypeSessionPurge removes expired session rows. Scheduled hourly.
	TaskTypeSessionPurge = "session:purge"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an asynq task for one email.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// RoleAlertPayload describes a workflow event targeted at one role.
type RoleAlertPayload struct {
	OrgID  int64  `json:"org_id"`
	Role   string `json:"role"`
	Action string `json:"action"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	PRID   int64  `json:"pr_id,omitempty"`
}

// NewRoleAlertTask constructs an asynq task for one role alert.
func NewRoleAlertTask(payload RoleAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRoleAlert, data), nil
}

// NewSessionPurgeTask constructs the periodic session cleanup task.
func NewSessionPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSessionPurge, nil)
}

// SMTPConfig locates the outgoing mail relay.
type SMTPConfig struct {
	Host string
	Port int
	From string
}

// NewSendEmailHandler returns the handler for TaskTypeSendEmail. Malformed
// payloads are dropped rather than retried.
func NewSendEmailHandler(cfg SMTPConfig, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
			cfg.From, payload.To, payload.Subject, payload.Body)
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		if err := smtp.SendMail(addr, nil, cfg.From, []string{payload.To}, []byte(msg)); err != nil {
			return err
		}
		logger.Info("email sent", slog.String("to", payload.To), slog.String("subject", payload.Subject))
		return nil
	}
}

// NewRoleAlertHandler returns the handler for TaskTypeRoleAlert. Alerts are
// published to a per-org per-role Redis channel that connected clients
// subscribe to.
func NewRoleAlertHandler(rdb *redis.Client, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload RoleAlertPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		channel := AlertChannel(payload.OrgID, payload.Role)
		data, err := json.Marshal(payload)
		if err != nil {
			return asynq.SkipRetry
		}
		if err := rdb.Publish(ctx, channel, data).Err(); err != nil {
			return err
		}
		logger.Info("role alert published",
			slog.String("channel", channel), slog.String("action", payload.Action))
		return nil
	}
}

// AlertChannel names the Redis pub/sub channel for a role's alerts.
func AlertChannel(orgID int64, role string) string {
	return fmt.Sprintf("alerts:%d:%s", orgID, role)
}

// SessionPurger deletes expired sessions and reports how many went.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// NewSessionPurgeHandler returns the handler for TaskTypeSessionPurge.
func NewSessionPurgeHandler(purger SessionPurger, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		purged, err := purger.PurgeExpiredSessions(ctx)
		if err != nil {
			return err
		}
		logger.Info("sessions purged",
			slog.Int64("count", purged), slog.Duration("took", time.Since(start)))
		return nil
	}
}
