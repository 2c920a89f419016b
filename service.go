package authd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrEthical07/authd/delivery"
	"github.com/MrEthical07/authd/internal"
	internalaudit "github.com/MrEthical07/authd/internal/audit"
	"github.com/MrEthical07/authd/internal/otp"
	"github.com/MrEthical07/authd/internal/rate"
	"github.com/MrEthical07/authd/jwt"
	"github.com/MrEthical07/authd/password"
	"github.com/MrEthical07/authd/session"
)

// Rate-limit action names. Each (action, key) pair is an independent
// counter+lock in Redis.
const (
	actionLogin      = "login"
	actionLoginIP    = "login_ip"
	actionOTPReq     = "otp_req"
	actionOTPReqIP   = "otp_req_ip"
	actionOTPVerify  = "otp_verify"
	actionOTPVfyIP   = "otp_verify_ip"
	actionRegisterIP = "register_ip"
)

// Service orchestrates registration, password and OTP login, session
// validation and revocation, and the audit trail. Construct it with
// New().…().Build().
type Service struct {
	config   Config
	users    UserStore
	hasher   *password.Hasher
	tokens   *jwt.Manager
	sessions *session.Store
	otps     *otp.Store
	limiter  *rate.Limiter
	sender   delivery.Sender
	auditor  *internalaudit.Dispatcher
	metrics  *Metrics
	logger   zerolog.Logger
}

// Close flushes the audit dispatcher. Call it on shutdown so buffered
// events reach the sink.
func (s *Service) Close() {
	if s.auditor != nil {
		s.auditor.Close()
	}
}

// Metrics returns the in-process metrics handle.
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// AuditDropped reports audit events discarded under DropIfFull.
func (s *Service) AuditDropped() uint64 {
	return s.auditor.Dropped()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func backendErr(err error) error {
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

func (s *Service) loginPolicy() rate.Policy {
	return rate.Policy{
		MaxAttempts: s.config.Limits.LoginMaxAttempts,
		Window:      s.config.Limits.LoginWindow,
		Lockout:     s.config.Limits.LoginLockout,
	}
}

func (s *Service) loginIPPolicy() rate.Policy {
	return rate.Policy{
		MaxAttempts: s.config.Limits.IPMaxAttempts,
		Window:      s.config.Limits.LoginWindow,
		Lockout:     s.config.Limits.LoginLockout,
	}
}

func (s *Service) otpRequestPolicy() rate.Policy {
	return rate.Policy{
		MaxAttempts: s.config.Limits.OTPRequestMax,
		Window:      s.config.Limits.OTPRequestWindow,
		Lockout:     s.config.Limits.OTPRequestLockout,
	}
}

func (s *Service) otpRequestIPPolicy() rate.Policy {
	p := s.otpRequestPolicy()
	p.MaxAttempts = s.config.Limits.IPMaxAttempts
	return p
}

func (s *Service) otpVerifyPolicy() rate.Policy {
	return rate.Policy{
		MaxAttempts: s.config.Limits.OTPVerifyMax,
		Window:      s.config.Limits.OTPVerifyWindow,
		Lockout:     s.config.Limits.OTPVerifyLockout,
	}
}

func (s *Service) otpVerifyIPPolicy() rate.Policy {
	p := s.otpVerifyPolicy()
	p.MaxAttempts = s.config.Limits.IPMaxAttempts
	return p
}

func (s *Service) registerPolicy() rate.Policy {
	return rate.Policy{
		MaxAttempts: s.config.Limits.RegisterMax,
		Window:      s.config.Limits.RegisterWindow,
		Lockout:     s.config.Limits.RegisterLockout,
	}
}

// checkLock inspects the lock state for an email key and, when IP
// throttling is on, the caller's IP key. It never consumes attempts;
// the check runs before any credential lookup.
func (s *Service) checkLock(ctx context.Context, action, ipAction, key string) error {
	dec, err := s.limiter.Check(ctx, action, key)
	if err != nil {
		return backendErr(err)
	}
	if dec.Locked {
		return &LockedError{RetryAfter: dec.RetryAfter}
	}

	if s.config.Limits.EnableIPThrottle {
		if ip := clientIPFromContext(ctx); ip != "" {
			dec, err := s.limiter.Check(ctx, ipAction, ip)
			if err != nil {
				return backendErr(err)
			}
			if dec.Locked {
				return &LockedError{RetryAfter: dec.RetryAfter}
			}
		}
	}
	return nil
}

// allow consumes one attempt against the email key and, when enabled,
// the IP key. Returns a LockedError when either side is over budget.
func (s *Service) allow(ctx context.Context, action, ipAction, key string, p, ipPolicy rate.Policy) error {
	dec, err := s.limiter.Allow(ctx, action, key, p)
	if err != nil {
		return backendErr(err)
	}
	if dec.Locked {
		return &LockedError{RetryAfter: dec.RetryAfter}
	}

	if s.config.Limits.EnableIPThrottle {
		if ip := clientIPFromContext(ctx); ip != "" {
			dec, err := s.limiter.Allow(ctx, ipAction, ip, ipPolicy)
			if err != nil {
				return backendErr(err)
			}
			if dec.Locked {
				return &LockedError{RetryAfter: dec.RetryAfter}
			}
		}
	}
	return nil
}

// recordFailure burns one failed attempt on the email and IP keys and
// reports whether this attempt crossed into the lockout.
func (s *Service) recordFailure(ctx context.Context, action, ipAction, key string, p, ipPolicy rate.Policy) (*LockedError, error) {
	dec, err := s.limiter.RecordFailure(ctx, action, key, p)
	if err != nil {
		return nil, backendErr(err)
	}
	var locked *LockedError
	if dec.Locked {
		locked = &LockedError{RetryAfter: dec.RetryAfter}
	}

	if s.config.Limits.EnableIPThrottle {
		if ip := clientIPFromContext(ctx); ip != "" {
			ipDec, err := s.limiter.RecordFailure(ctx, ipAction, ip, ipPolicy)
			if err != nil {
				return nil, backendErr(err)
			}
			if ipDec.Locked && locked == nil {
				locked = &LockedError{RetryAfter: ipDec.RetryAfter}
			}
		}
	}
	return locked, nil
}

// issueSession creates the server-side record and signs the token pair.
func (s *Service) issueSession(ctx context.Context, user *User) (*LoginResult, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	sessionID := sid.String()

	refreshSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &session.Session{
		SessionID:   sessionID,
		UserID:      user.ID,
		Role:        string(user.Role),
		RefreshHash: internal.HashRefreshSecret(refreshSecret),
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(s.config.Session.RefreshTTL).Unix(),
	}

	if err := s.sessions.Save(ctx, sess, s.config.Session.RefreshTTL); err != nil {
		return nil, backendErr(err)
	}
	s.metricInc(MetricSessionCreated)

	accessToken, err := s.tokens.CreateAccess(user.ID, sessionID, string(user.Role))
	if err != nil {
		return nil, err
	}

	refreshToken, err := internal.EncodeRefreshToken(sessionID, refreshSecret)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		UserID:          user.ID,
		SessionID:       sessionID,
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		AccessExpiresAt: now.Add(s.config.JWT.AccessTTL),
	}, nil
}
