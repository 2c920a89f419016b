package authd

import (
	"errors"
	"time"
)

// Config is the sectioned service configuration. Zero values are filled
// from defaultConfig by the builder; Validate rejects anything a running
// service could not honor, so misconfiguration is fatal at startup.
type Config struct {
	Limits   LimitsConfig
	OTP      OTPConfig
	Session  SessionConfig
	JWT      JWTConfig
	Password PasswordConfig
	Register RegisterConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// LimitsConfig tunes the rate-limit key classes. Each class pairs a
// fixed counting window with an explicit lockout duration; reaching the
// attempt cap installs the lock atomically.
type LimitsConfig struct {
	LoginMaxAttempts int
	LoginWindow      time.Duration
	LoginLockout     time.Duration

	OTPRequestMax     int
	OTPRequestWindow  time.Duration
	OTPRequestLockout time.Duration

	OTPVerifyMax     int
	OTPVerifyWindow  time.Duration
	OTPVerifyLockout time.Duration

	RegisterMax     int
	RegisterWindow  time.Duration
	RegisterLockout time.Duration

	// EnableIPThrottle adds per-IP keys alongside the per-email keys for
	// login and OTP operations.
	EnableIPThrottle bool
	IPMaxAttempts    int
}

type OTPConfig struct {
	Digits      int
	TTL         time.Duration
	MaxAttempts int
	KeyPrefix   string
}

type SessionConfig struct {
	// RefreshTTL bounds how long a session can keep refreshing. The
	// server-side record expires with it.
	RefreshTTL time.Duration
	KeyPrefix  string
}

type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	KeyID         string
	VerifyKeys    map[string][]byte
}

type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MinLength is the minimum accepted password length in bytes.
	MinLength int
}

type RegisterConfig struct {
	DefaultRole Role
	// AutoActivate creates accounts directly in StatusActive instead of
	// StatusPending awaiting email verification.
	AutoActivate bool
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull trades completeness for latency. Off by default: audit
	// events are part of the contract, not best-effort telemetry.
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		Limits: LimitsConfig{
			LoginMaxAttempts:  5,
			LoginWindow:       15 * time.Minute,
			LoginLockout:      15 * time.Minute,
			OTPRequestMax:     3,
			OTPRequestWindow:  10 * time.Minute,
			OTPRequestLockout: 10 * time.Minute,
			OTPVerifyMax:      10,
			OTPVerifyWindow:   15 * time.Minute,
			OTPVerifyLockout:  15 * time.Minute,
			RegisterMax:       10,
			RegisterWindow:    time.Hour,
			RegisterLockout:   time.Hour,
			EnableIPThrottle:  true,
			IPMaxAttempts:     20,
		},
		OTP: OTPConfig{
			Digits:      6,
			TTL:         5 * time.Minute,
			MaxAttempts: 3,
			KeyPrefix:   "aotp",
		},
		Session: SessionConfig{
			RefreshTTL: 7 * 24 * time.Hour,
			KeyPrefix:  "asn",
		},
		JWT: JWTConfig{
			AccessTTL:     5 * time.Minute,
			Leeway:        30 * time.Second,
			RequireIAT:    true,
			Issuer:        "authd",
			SigningMethod: "ed25519",
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        2,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
		},
		Register: RegisterConfig{
			DefaultRole: RoleUser,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
		},
	}
}

// Validate checks cross-field consistency. The builder calls it after
// merging defaults.
func (c *Config) Validate() error {
	if c.Limits.LoginMaxAttempts <= 0 {
		return errors.New("limits: LoginMaxAttempts must be positive")
	}
	if c.Limits.LoginWindow <= 0 || c.Limits.LoginLockout <= 0 {
		return errors.New("limits: login window and lockout must be positive")
	}
	if c.Limits.OTPRequestMax <= 0 || c.Limits.OTPRequestWindow <= 0 || c.Limits.OTPRequestLockout <= 0 {
		return errors.New("limits: otp request policy must be positive")
	}
	if c.Limits.OTPVerifyMax <= 0 || c.Limits.OTPVerifyWindow <= 0 || c.Limits.OTPVerifyLockout <= 0 {
		return errors.New("limits: otp verify policy must be positive")
	}
	if c.Limits.RegisterMax <= 0 || c.Limits.RegisterWindow <= 0 || c.Limits.RegisterLockout <= 0 {
		return errors.New("limits: register policy must be positive")
	}
	if c.Limits.EnableIPThrottle && c.Limits.IPMaxAttempts <= 0 {
		return errors.New("limits: IPMaxAttempts must be positive when IP throttle is enabled")
	}

	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("otp: Digits must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("otp: TTL must be positive")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("otp: MaxAttempts must be positive")
	}

	if c.Session.RefreshTTL <= 0 {
		return errors.New("session: RefreshTTL must be positive")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("jwt: AccessTTL must be positive")
	}
	if c.JWT.AccessTTL >= c.Session.RefreshTTL {
		return errors.New("jwt: AccessTTL must be shorter than session RefreshTTL")
	}
	switch c.JWT.SigningMethod {
	case "ed25519", "hs256":
	default:
		return errors.New("jwt: SigningMethod must be ed25519 or hs256")
	}

	if c.Password.MinLength < 0 {
		return errors.New("password: MinLength must not be negative")
	}

	if !c.Register.DefaultRole.Valid() {
		return errors.New("register: DefaultRole is not a known role")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit: BufferSize must be positive when enabled")
	}

	return nil
}
