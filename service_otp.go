package authd

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authd/delivery"
	"github.com/MrEthical07/authd/internal"
	"github.com/MrEthical07/authd/internal/otp"
)

// RequestOTP issues a login code and hands it to the delivery sender.
// Issuing replaces any previous login code for the user, so at most one
// code is valid at a time. Unlike password login, an unknown email is
// reported: OTP login is an explicit account-recovery style flow and
// the request limiter caps probing.
func (s *Service) RequestOTP(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}

	if err := s.allow(ctx, actionOTPReq, actionOTPReqIP, email, s.otpRequestPolicy(), s.otpRequestIPPolicy()); err != nil {
		if errors.Is(err, ErrAccountLocked) {
			s.emitAudit(ctx, auditEventOTPRateLimited, false, "", "", err, func() map[string]string {
				return map[string]string{"email": email, "op": "request"}
			})
		}
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrStoreUserNotFound) {
			s.emitAudit(ctx, auditEventOTPRequestFailure, false, "", "", ErrAccountNotFound, func() map[string]string {
				return map[string]string{"email": email}
			})
			return ErrAccountNotFound
		}
		return err
	}
	if user.Status != StatusActive {
		s.emitAudit(ctx, auditEventOTPRequestFailure, false, user.ID, "", ErrAccountNotActive, func() map[string]string {
			return map[string]string{"email": email, "status": user.Status.String()}
		})
		return ErrAccountNotActive
	}

	return s.issueCode(ctx, user, otp.PurposeLogin, "Your login code")
}

// VerifyOTP completes an OTP login. The code is single use: a match
// consumes it inside the store, and a concurrent duplicate verify loses.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || code == "" {
		return nil, ErrInvalidInput
	}

	if err := s.allow(ctx, actionOTPVerify, actionOTPVfyIP, email, s.otpVerifyPolicy(), s.otpVerifyIPPolicy()); err != nil {
		if errors.Is(err, ErrAccountLocked) {
			s.emitAudit(ctx, auditEventOTPRateLimited, false, "", "", err, func() map[string]string {
				return map[string]string{"email": email, "op": "verify"}
			})
		}
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrStoreUserNotFound) {
			s.metricInc(MetricOTPVerifyFailure)
			s.emitAudit(ctx, auditEventOTPVerifyFailure, false, "", "", ErrOTPInvalid, func() map[string]string {
				return map[string]string{"email": email, "reason": "unknown_email"}
			})
			return nil, ErrOTPInvalid
		}
		return nil, err
	}

	// Status is checked before the code is touched so an inactive
	// account does not burn its only valid code.
	if user.Status != StatusActive {
		s.metricInc(MetricOTPVerifyFailure)
		s.emitAudit(ctx, auditEventOTPVerifyFailure, false, user.ID, "", ErrAccountNotActive, func() map[string]string {
			return map[string]string{"email": email, "status": user.Status.String()}
		})
		return nil, ErrAccountNotActive
	}

	if err := s.consumeCode(ctx, user, otp.PurposeLogin, code); err != nil {
		return nil, err
	}

	result, err := s.issueSession(ctx, user)
	if err != nil {
		s.emitAudit(ctx, auditEventOTPVerifyFailure, false, user.ID, "", err, func() map[string]string {
			return map[string]string{"email": email, "reason": "session_issue_failed"}
		})
		return nil, err
	}

	if err := s.limiter.Reset(ctx, actionOTPVerify, email); err != nil {
		s.logger.Warn().Err(err).Msg("otp verify limiter reset failed")
	}

	s.metricInc(MetricOTPVerifySuccess)
	s.emitAudit(ctx, auditEventOTPVerifySuccess, true, user.ID, result.SessionID, nil, func() map[string]string {
		return map[string]string{"email": email, "method": "otp"}
	})
	return result, nil
}

// RequestEmailVerification issues a verification code. Pending accounts
// use it to activate; active accounts may re-verify after an email
// change.
func (s *Service) RequestEmailVerification(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}

	if err := s.allow(ctx, actionOTPReq, actionOTPReqIP, email, s.otpRequestPolicy(), s.otpRequestIPPolicy()); err != nil {
		if errors.Is(err, ErrAccountLocked) {
			s.emitAudit(ctx, auditEventOTPRateLimited, false, "", "", err, func() map[string]string {
				return map[string]string{"email": email, "op": "verification_request"}
			})
		}
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrStoreUserNotFound) {
			s.emitAudit(ctx, auditEventEmailVerificationFailure, false, "", "", ErrAccountNotFound, func() map[string]string {
				return map[string]string{"email": email}
			})
			return ErrAccountNotFound
		}
		return err
	}
	if user.Status == StatusSuspended {
		s.emitAudit(ctx, auditEventEmailVerificationFailure, false, user.ID, "", ErrAccountNotActive, func() map[string]string {
			return map[string]string{"email": email, "status": user.Status.String()}
		})
		return ErrAccountNotActive
	}

	if err := s.issueCode(ctx, user, otp.PurposeVerification, "Verify your email"); err != nil {
		return err
	}
	s.emitAudit(ctx, auditEventEmailVerificationRequested, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"email": email}
	})
	return nil
}

// ConfirmEmailVerification consumes a verification code, marks the email
// verified, and activates pending accounts.
func (s *Service) ConfirmEmailVerification(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	if email == "" || code == "" {
		return ErrInvalidInput
	}

	if err := s.allow(ctx, actionOTPVerify, actionOTPVfyIP, email, s.otpVerifyPolicy(), s.otpVerifyIPPolicy()); err != nil {
		if errors.Is(err, ErrAccountLocked) {
			s.emitAudit(ctx, auditEventOTPRateLimited, false, "", "", err, func() map[string]string {
				return map[string]string{"email": email, "op": "verification_confirm"}
			})
		}
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrStoreUserNotFound) {
			s.emitAudit(ctx, auditEventEmailVerificationFailure, false, "", "", ErrOTPInvalid, func() map[string]string {
				return map[string]string{"email": email, "reason": "unknown_email"}
			})
			return ErrOTPInvalid
		}
		return err
	}

	if err := s.consumeCode(ctx, user, otp.PurposeVerification, code); err != nil {
		return err
	}

	if err := s.users.SetEmailVerified(ctx, user.ID); err != nil {
		return err
	}
	if user.Status == StatusPending {
		if err := s.users.UpdateStatus(ctx, user.ID, StatusActive); err != nil {
			return err
		}
	}

	s.metricInc(MetricEmailVerified)
	s.emitAudit(ctx, auditEventEmailVerified, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"email": email}
	})
	return nil
}

// issueCode stores the hashed code first and only then hands the
// plaintext to the sender, so a delivered code is always verifiable.
func (s *Service) issueCode(ctx context.Context, user *User, purpose otp.Purpose, subject string) error {
	code, err := internal.NewOTP(s.config.OTP.Digits)
	if err != nil {
		return err
	}

	record := &otp.Record{
		UserID:    user.ID,
		CodeHash:  internal.HashCode(code),
		ExpiresAt: time.Now().Add(s.config.OTP.TTL).Unix(),
		Purpose:   purpose,
	}
	if err := s.otps.Put(ctx, record, s.config.OTP.TTL); err != nil {
		return backendErr(err)
	}

	msg := delivery.Message{To: user.Email, Subject: subject, Code: code}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.metricInc(MetricOTPDeliveryFailure)
		s.emitAudit(ctx, auditEventOTPDeliveryFailure, false, user.ID, "", err, func() map[string]string {
			return map[string]string{"email": user.Email, "purpose": purpose.String()}
		})
		return ErrDeliveryFailed
	}

	s.metricInc(MetricOTPRequested)
	if purpose == otp.PurposeLogin {
		s.emitAudit(ctx, auditEventOTPRequested, true, user.ID, "", nil, func() map[string]string {
			return map[string]string{"email": user.Email, "purpose": purpose.String()}
		})
	}
	return nil
}

// consumeCode maps store outcomes onto the public error set and emits
// the failure audit events.
func (s *Service) consumeCode(ctx context.Context, user *User, purpose otp.Purpose, code string) error {
	_, err := s.otps.Consume(ctx, purpose, user.ID, internal.HashCode(code), s.config.OTP.MaxAttempts)
	if err == nil {
		return nil
	}

	var mapped error
	switch {
	case errors.Is(err, otp.ErrCodeExpired):
		mapped = ErrOTPExpired
	case errors.Is(err, otp.ErrCodeExhausted):
		mapped = ErrOTPExhausted
	case errors.Is(err, otp.ErrCodeNotFound), errors.Is(err, otp.ErrCodeMismatch), errors.Is(err, otp.ErrPurposeMismatch):
		mapped = ErrOTPInvalid
	default:
		return backendErr(err)
	}

	if errors.Is(mapped, ErrOTPExhausted) {
		s.metricInc(MetricOTPExhausted)
		s.emitAudit(ctx, auditEventOTPExhausted, false, user.ID, "", mapped, func() map[string]string {
			return map[string]string{"email": user.Email, "purpose": purpose.String()}
		})
		return mapped
	}

	s.metricInc(MetricOTPVerifyFailure)
	s.emitAudit(ctx, auditEventOTPVerifyFailure, false, user.ID, "", mapped, func() map[string]string {
		return map[string]string{"email": user.Email, "purpose": purpose.String()}
	})
	return mapped
}
