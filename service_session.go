package authd

import (
	"context"
	"errors"
	"strconv"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/authd/internal"
	"github.com/MrEthical07/authd/session"
)

// Validate checks the access token signature and then the server-side
// session record. Both must pass: a cryptographically valid token for a
// revoked session is rejected immediately, with no caching window.
func (s *Service) Validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	claims, err := s.tokens.ParseAccess(accessToken)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	sess, err := s.sessions.Get(ctx, claims.SID)
	if err != nil {
		return nil, s.mapSessionErr(err)
	}
	if sess.UserID != claims.UID {
		return nil, ErrTokenInvalid
	}

	return &AuthResult{
		UserID:    sess.UserID,
		SessionID: sess.SessionID,
		Role:      Role(sess.Role),
	}, nil
}

// Refresh rotates the refresh token and returns a new pair. Presenting
// a rotated-out token revokes the session and fails with
// ErrRefreshReuse; the legitimate holder is forced to re-authenticate,
// which is the contained outcome.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	sessionID, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		s.metricInc(MetricRefreshFailure)
		s.emitAudit(ctx, auditEventRefreshFailure, false, "", "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{"reason": "malformed_token"}
		})
		return nil, ErrTokenInvalid
	}

	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.RotateRefreshHash(
		ctx,
		sessionID,
		internal.HashRefreshSecret(secret),
		internal.HashRefreshSecret(nextSecret),
	)
	if err != nil {
		if errors.Is(err, session.ErrRefreshMismatch) {
			s.metricInc(MetricRefreshReuseDetected)
			s.emitAudit(ctx, auditEventRefreshReuse, false, "", sessionID, ErrRefreshReuse, nil)
			return nil, ErrRefreshReuse
		}
		mapped := s.mapSessionErr(err)
		s.metricInc(MetricRefreshFailure)
		s.emitAudit(ctx, auditEventRefreshFailure, false, "", sessionID, mapped, nil)
		return nil, mapped
	}

	accessToken, err := s.tokens.CreateAccess(sess.UserID, sessionID, sess.Role)
	if err != nil {
		return nil, err
	}
	newRefresh, err := internal.EncodeRefreshToken(sessionID, nextSecret)
	if err != nil {
		return nil, err
	}

	s.metricInc(MetricRefreshSuccess)
	s.emitAudit(ctx, auditEventRefreshSuccess, true, sess.UserID, sessionID, nil, nil)
	return &LoginResult{
		UserID:          sess.UserID,
		SessionID:       sessionID,
		AccessToken:     accessToken,
		RefreshToken:    newRefresh,
		AccessExpiresAt: time.Now().Add(s.config.JWT.AccessTTL),
	}, nil
}

// Logout revokes one session. Revoking an already-revoked or unknown
// session is a no-op, not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidInput
	}

	transitioned, err := s.sessions.Revoke(ctx, sessionID)
	if err != nil {
		return backendErr(err)
	}

	if transitioned {
		s.metricInc(MetricSessionRevoked)
	}
	s.metricInc(MetricLogout)
	s.emitAudit(ctx, auditEventLogout, true, "", sessionID, nil, func() map[string]string {
		return map[string]string{"transitioned": strconv.FormatBool(transitioned)}
	})
	return nil
}

// LogoutByToken revokes the session named by a valid access token.
func (s *Service) LogoutByToken(ctx context.Context, accessToken string) error {
	claims, err := s.tokens.ParseAccess(accessToken)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	return s.Logout(ctx, claims.SID)
}

// RevokeAll revokes every active session of the user and returns the
// count of sessions transitioned by this call.
func (s *Service) RevokeAll(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrInvalidInput
	}

	count, err := s.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, backendErr(err)
	}

	s.metricInc(MetricRevokeAll)
	s.emitAudit(ctx, auditEventRevokeAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"sessions_revoked": strconv.Itoa(count)}
	})
	return count, nil
}

func (s *Service) mapSessionErr(err error) error {
	switch {
	case errors.Is(err, session.ErrRevoked):
		return ErrSessionRevoked
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired):
		return ErrSessionExpired
	default:
		return backendErr(err)
	}
}
