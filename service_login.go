package authd

import (
	"context"
	"errors"
)

// LoginPassword authenticates with email and password. The lock check
// runs before the credential lookup, so a locked identity is rejected
// with a retry-after hint even when the password is correct, and locked
// attempts never advance the counter. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *Service) LoginPassword(ctx context.Context, email, plainPassword string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || plainPassword == "" {
		return nil, ErrInvalidInput
	}

	if err := s.checkLock(ctx, actionLogin, actionLoginIP, email); err != nil {
		if errors.Is(err, ErrAccountLocked) {
			s.metricInc(MetricLoginRateLimited)
			s.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", err, func() map[string]string {
				return map[string]string{"email": email}
			})
		}
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrStoreUserNotFound) {
			// Unknown emails still consume an attempt so probing cannot
			// distinguish them from registered ones.
			return nil, s.failLogin(ctx, email, "", "unknown_email")
		}
		return nil, err
	}

	if user.AuthMethod != AuthMethodPassword || user.PasswordHash == "" {
		return nil, s.failLogin(ctx, email, user.ID, "no_password_credential")
	}

	ok, err := s.hasher.Verify(plainPassword, user.PasswordHash)
	if err != nil {
		return nil, s.failLogin(ctx, email, user.ID, "hash_verify_error")
	}
	if !ok {
		return nil, s.failLogin(ctx, email, user.ID, "password_mismatch")
	}

	switch user.Status {
	case StatusActive:
	case StatusPending, StatusSuspended:
		s.metricInc(MetricLoginFailure)
		s.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ErrAccountNotActive, func() map[string]string {
			return map[string]string{"email": email, "status": user.Status.String()}
		})
		return nil, ErrAccountNotActive
	default:
		return nil, s.failLogin(ctx, email, user.ID, "status_"+user.Status.String())
	}

	s.maybeRehash(ctx, user, plainPassword)

	result, err := s.issueSession(ctx, user)
	if err != nil {
		s.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", err, func() map[string]string {
			return map[string]string{"email": email, "reason": "session_issue_failed"}
		})
		return nil, err
	}

	if err := s.limiter.Reset(ctx, actionLogin, email); err != nil {
		s.logger.Warn().Err(err).Msg("login limiter reset failed")
	}

	s.metricInc(MetricLoginSuccess)
	s.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, result.SessionID, nil, func() map[string]string {
		return map[string]string{"email": email, "method": "password"}
	})
	return result, nil
}

// failLogin burns one attempt and returns either the generic denial or,
// when this attempt crossed the threshold, the lockout error. Exactly
// one audit event is emitted either way.
func (s *Service) failLogin(ctx context.Context, email, userID, reason string) error {
	locked, err := s.recordFailure(ctx, actionLogin, actionLoginIP, email, s.loginPolicy(), s.loginIPPolicy())
	if err != nil {
		return err
	}
	if locked != nil {
		s.metricInc(MetricLoginRateLimited)
		s.emitAudit(ctx, auditEventLoginRateLimited, false, userID, "", locked, func() map[string]string {
			return map[string]string{"email": email, "reason": reason}
		})
		return locked
	}

	s.metricInc(MetricLoginFailure)
	s.emitAudit(ctx, auditEventLoginFailure, false, userID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"email": email, "reason": reason}
	})
	return ErrInvalidCredentials
}

// maybeRehash upgrades the stored hash after a successful verify when
// the configured cost parameters have been raised. Best effort.
func (s *Service) maybeRehash(ctx context.Context, user *User, plainPassword string) {
	needs, err := s.hasher.NeedsRehash(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	newHash, err := s.hasher.Hash(plainPassword)
	if err != nil {
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("password rehash update failed")
	}
}
