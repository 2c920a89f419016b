package authd

import (
	"context"
	"errors"
	"strconv"
)

// Register creates an account. Password is optional: without one the
// account is OTP-only. Unless Register.AutoActivate is set, the account
// starts pending and must confirm its email before logging in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		s.emitAudit(ctx, auditEventRegisterFailure, false, "", "", ErrInvalidInput, func() map[string]string {
			return map[string]string{"reason": "empty_email"}
		})
		return nil, ErrInvalidInput
	}

	if ip := clientIPFromContext(ctx); ip != "" {
		dec, err := s.limiter.Allow(ctx, actionRegisterIP, ip, s.registerPolicy())
		if err != nil {
			return nil, backendErr(err)
		}
		if dec.Locked {
			s.metricInc(MetricRegisterRateLimited)
			s.emitAudit(ctx, auditEventRegisterRateLimited, false, "", "", ErrAccountLocked, func() map[string]string {
				return map[string]string{"email": email}
			})
			return nil, &LockedError{RetryAfter: dec.RetryAfter}
		}
	}

	role := req.Role
	if role == "" {
		role = s.config.Register.DefaultRole
	}
	if !role.Valid() {
		s.emitAudit(ctx, auditEventRegisterFailure, false, "", "", ErrInvalidInput, func() map[string]string {
			return map[string]string{"email": email, "reason": "invalid_role"}
		})
		return nil, ErrInvalidInput
	}

	authMethod := AuthMethodOTP
	passwordHash := ""
	if req.Password != "" {
		hash, err := s.hasher.Hash(req.Password)
		if err != nil {
			s.emitAudit(ctx, auditEventRegisterFailure, false, "", "", ErrPasswordPolicy, func() map[string]string {
				return map[string]string{"email": email, "reason": "password_policy"}
			})
			return nil, ErrPasswordPolicy
		}
		authMethod = AuthMethodPassword
		passwordHash = hash
	}

	status := StatusPending
	if s.config.Register.AutoActivate {
		status = StatusActive
	}

	created, err := s.users.Create(ctx, CreateUserInput{
		Email:        email,
		PasswordHash: passwordHash,
		FullName:     req.FullName,
		CompanyName:  req.CompanyName,
		AuthMethod:   authMethod,
		Role:         role,
		Status:       status,
	})
	if err != nil {
		if errors.Is(err, ErrStoreDuplicateEmail) {
			s.metricInc(MetricRegisterDuplicate)
			s.emitAudit(ctx, auditEventRegisterDuplicate, false, "", "", ErrDuplicateRegistration, func() map[string]string {
				return map[string]string{"email": email}
			})
			return nil, ErrDuplicateRegistration
		}
		s.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, func() map[string]string {
			return map[string]string{"email": email, "reason": "store_create_failed"}
		})
		return nil, err
	}

	s.metricInc(MetricRegisterSuccess)
	s.emitAudit(ctx, auditEventRegisterSuccess, true, created.ID, "", nil, func() map[string]string {
		return map[string]string{"email": email, "role": string(created.Role), "status": created.Status.String()}
	})
	return &RegisterResult{UserID: created.ID, Status: created.Status}, nil
}

// ChangePassword verifies the current password, installs the new hash,
// and revokes every session of the user. The login limiter is reset so
// the owner is not locked out by a prior attacker run.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if userID == "" || newPassword == "" {
		return ErrInvalidInput
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrStoreUserNotFound) {
			s.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, "", ErrInvalidCredentials, nil)
			return ErrInvalidCredentials
		}
		return err
	}
	if user.AuthMethod != AuthMethodPassword || user.PasswordHash == "" {
		s.emitAudit(ctx, auditEventPasswordChangeFailure, false, user.ID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "no_password_credential"}
		})
		return ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil || !ok {
		s.emitAudit(ctx, auditEventPasswordChangeFailure, false, user.ID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "old_password_mismatch"}
		})
		return ErrInvalidCredentials
	}

	same, err := s.hasher.Verify(newPassword, user.PasswordHash)
	if err == nil && same {
		s.emitAudit(ctx, auditEventPasswordChangeFailure, false, user.ID, "", ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.emitAudit(ctx, auditEventPasswordChangeFailure, false, user.ID, "", ErrPasswordPolicy, nil)
		return ErrPasswordPolicy
	}

	if err := s.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		s.emitAudit(ctx, auditEventPasswordChangeFailure, false, user.ID, "", err, func() map[string]string {
			return map[string]string{"reason": "store_update_failed"}
		})
		return err
	}

	revoked, err := s.sessions.RevokeAllForUser(ctx, user.ID)
	if err != nil {
		return backendErr(err)
	}
	if err := s.limiter.Reset(ctx, actionLogin, user.Email); err != nil {
		s.logger.Warn().Err(err).Msg("login limiter reset failed after password change")
	}

	s.metricInc(MetricPasswordChangeSuccess)
	s.emitAudit(ctx, auditEventPasswordChangeSuccess, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"sessions_revoked": strconv.Itoa(revoked)}
	})
	return nil
}
