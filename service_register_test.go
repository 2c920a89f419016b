package authd_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/authd"
)

func TestRegister(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	ctx := context.Background()

	result, err := svc.Register(ctx, authd.RegisterRequest{
		Email:    "New.User@Example.com",
		Password: testPassword,
		FullName: "New User",
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if result.Status != authd.StatusActive {
		t.Fatalf("Status = %v, want StatusActive with AutoActivate", result.Status)
	}

	user, err := store.GetByEmail(ctx, "new.user@example.com")
	if err != nil {
		t.Fatalf("GetByEmail error: %v", err)
	}
	if user.ID != result.UserID {
		t.Fatalf("UserID mismatch: %q vs %q", user.ID, result.UserID)
	}
	if user.AuthMethod != authd.AuthMethodPassword {
		t.Fatalf("AuthMethod = %q", user.AuthMethod)
	}
	if user.PasswordHash == "" || user.PasswordHash == testPassword {
		t.Fatal("password must be stored hashed")
	}
	if user.Role != authd.RoleUser {
		t.Fatalf("Role = %q, want default role", user.Role)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()
	registerUser(t, svc, testEmail, testPassword)

	_, err := svc.Register(ctx, authd.RegisterRequest{
		Email:    "USER@example.com",
		Password: testPassword,
	})
	if !errors.Is(err, authd.ErrDuplicateRegistration) {
		t.Fatalf("Register error = %v, want ErrDuplicateRegistration", err)
	}
}

func TestRegisterAfterSoftDelete(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	ctx := context.Background()
	userID := registerUser(t, svc, testEmail, testPassword)

	if err := store.SoftDelete(ctx, userID); err != nil {
		t.Fatalf("SoftDelete error: %v", err)
	}

	// A soft-deleted holder does not block the email.
	result, err := svc.Register(ctx, authd.RegisterRequest{
		Email:    testEmail,
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if result.UserID == userID {
		t.Fatal("re-registration must create a new account")
	}
}

func TestRegisterAcceptsNineBytePassword(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	const shortButValid = "P@ssw0rd!"
	if _, err := svc.Register(ctx, authd.RegisterRequest{
		Email:    testEmail,
		Password: shortButValid,
	}); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	result := login(t, svc, testEmail, shortButValid)
	if _, err := svc.Validate(ctx, result.AccessToken); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestRegisterWeakPassword(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	_, err := svc.Register(context.Background(), authd.RegisterRequest{
		Email:    testEmail,
		Password: "short",
	})
	if !errors.Is(err, authd.ErrPasswordPolicy) {
		t.Fatalf("Register error = %v, want ErrPasswordPolicy", err)
	}
}

func TestRegisterInvalidRole(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	_, err := svc.Register(context.Background(), authd.RegisterRequest{
		Email:    testEmail,
		Password: testPassword,
		Role:     authd.Role("root"),
	})
	if !errors.Is(err, authd.ErrInvalidInput) {
		t.Fatalf("Register error = %v, want ErrInvalidInput", err)
	}
}

func TestRegisterPendingBlocksLogin(t *testing.T) {
	svc, _, _ := newTestService(t, func(cfg *authd.Config) {
		cfg.Register.AutoActivate = false
	})
	ctx := context.Background()

	result, err := svc.Register(ctx, authd.RegisterRequest{
		Email:    testEmail,
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if result.Status != authd.StatusPending {
		t.Fatalf("Status = %v, want StatusPending", result.Status)
	}

	if _, err := svc.LoginPassword(ctx, testEmail, testPassword); !errors.Is(err, authd.ErrAccountNotActive) {
		t.Fatalf("pending login error = %v, want ErrAccountNotActive", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()
	userID := registerUser(t, svc, testEmail, testPassword)
	result := login(t, svc, testEmail, testPassword)

	newPassword := "renewed-password-2"

	if err := svc.ChangePassword(ctx, userID, "wrong-password-1", newPassword); !errors.Is(err, authd.ErrInvalidCredentials) {
		t.Fatalf("wrong old password error = %v, want ErrInvalidCredentials", err)
	}
	if err := svc.ChangePassword(ctx, userID, testPassword, testPassword); !errors.Is(err, authd.ErrPasswordReuse) {
		t.Fatalf("reused password error = %v, want ErrPasswordReuse", err)
	}

	if err := svc.ChangePassword(ctx, userID, testPassword, newPassword); err != nil {
		t.Fatalf("ChangePassword error: %v", err)
	}

	// All existing sessions die with the old password.
	if _, err := svc.Validate(ctx, result.AccessToken); !errors.Is(err, authd.ErrSessionRevoked) {
		t.Fatalf("Validate error = %v, want ErrSessionRevoked", err)
	}

	if _, err := svc.LoginPassword(ctx, testEmail, testPassword); !errors.Is(err, authd.ErrInvalidCredentials) {
		t.Fatalf("old password login error = %v, want ErrInvalidCredentials", err)
	}
	login(t, svc, testEmail, newPassword)
}
