package authd

import (
	"context"
	"time"

	"github.com/google/uuid"

	internalaudit "github.com/MrEthical07/authd/internal/audit"
)

// Audit event types. Each terminal outcome of a service operation emits
// exactly one of these.
const (
	auditEventRegisterSuccess     = "register_success"
	auditEventRegisterDuplicate   = "register_duplicate"
	auditEventRegisterFailure     = "register_failure"
	auditEventRegisterRateLimited = "register_rate_limited"

	auditEventLoginSuccess     = "login_success"
	auditEventLoginFailure     = "login_failure"
	auditEventLoginRateLimited = "login_rate_limited"

	auditEventOTPRequested       = "otp_requested"
	auditEventOTPRequestFailure  = "otp_request_failure"
	auditEventOTPDeliveryFailure = "otp_delivery_failure"
	auditEventOTPRateLimited     = "otp_rate_limited"
	auditEventOTPVerifySuccess   = "otp_verify_success"
	auditEventOTPVerifyFailure   = "otp_verify_failure"
	auditEventOTPExhausted       = "otp_exhausted"

	auditEventEmailVerificationRequested = "email_verification_requested"
	auditEventEmailVerified              = "email_verified"
	auditEventEmailVerificationFailure   = "email_verification_failure"

	auditEventRefreshSuccess = "refresh_success"
	auditEventRefreshFailure = "refresh_failure"
	auditEventRefreshReuse   = "refresh_reuse_detected"

	auditEventLogout    = "logout"
	auditEventRevokeAll = "revoke_all"

	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
)

// emitAudit builds and dispatches one audit event. Metadata is supplied
// lazily so disabled auditing costs nothing on the hot path.
func (s *Service) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID, sessionID string,
	opErr error,
	metadata func() map[string]string,
) {
	if s.auditor == nil {
		return
	}

	event := internalaudit.Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}
	if metadata != nil {
		event.Metadata = metadata()
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		event.Metadata["user_agent"] = ua
	}

	s.auditor.Emit(ctx, event)
}

func (s *Service) metricInc(id MetricID) {
	s.metrics.Inc(id)
}
