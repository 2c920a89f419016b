package authd

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/authd/internal/audit"
)

// AccountStatus is the lifecycle state of a user account.
type AccountStatus uint8

const (
	StatusPending AccountStatus = iota
	StatusActive
	StatusSuspended
	StatusDeleted
)

func (s AccountStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusSuspended:
		return "suspended"
	case StatusDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Role is a coarse access tier carried in sessions and access tokens.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// AuthMethod is the primary credential type of an account.
type AuthMethod string

const (
	AuthMethodPassword AuthMethod = "password"
	AuthMethodOTP      AuthMethod = "otp"
)

// User is the account record held by the host's UserStore.
type User struct {
	ID            string
	Email         string
	EmailVerified bool
	FullName      string
	CompanyName   string
	PasswordHash  string
	AuthMethod    AuthMethod
	Role          Role
	Status        AccountStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// UserStore is the credential-store interface the host implements.
// Lookups operate on live accounts only: a soft-deleted user must be
// reported as ErrStoreUserNotFound, and its email must not block Create.
// Email matching is case-insensitive.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, userID string) (*User, error)
	Create(ctx context.Context, input CreateUserInput) (*User, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	UpdateStatus(ctx context.Context, userID string, status AccountStatus) error
	SetEmailVerified(ctx context.Context, userID string) error
}

// CreateUserInput is the input for UserStore.Create.
type CreateUserInput struct {
	Email        string
	PasswordHash string
	FullName     string
	CompanyName  string
	AuthMethod   AuthMethod
	Role         Role
	Status       AccountStatus
}

// RegisterRequest is the input for Service.Register. Password is
// optional; accounts without one authenticate by OTP only.
type RegisterRequest struct {
	Email       string
	Password    string
	FullName    string
	CompanyName string
	Role        Role
}

// RegisterResult is returned by Service.Register.
type RegisterResult struct {
	UserID string
	Status AccountStatus
}

// LoginResult carries the issued token pair.
type LoginResult struct {
	UserID          string
	SessionID       string
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}

// AuthResult is returned by Service.Validate for a live session.
type AuthResult struct {
	UserID    string
	SessionID string
	Role      Role
}

// AuditEvent is a structured audit record emitted by the service.
type AuditEvent = internalaudit.Event

// AuditSink receives AuditEvent values from the audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards all audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based AuditSink.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes JSON-encoded events to an io.Writer.
type JSONWriterSink = internalaudit.JSONWriterSink

// ZerologSink renders audit events through a zerolog logger.
type ZerologSink = internalaudit.ZerologSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
