package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tradepost/tradepost/internal/domain"
	"github.com/tradepost/tradepost/internal/repository"
)

// countingUserRepository records how many times the credential path touched
// the user store.
type countingUserRepository struct {
	repository.UserRepository
	findByEmailCalls int
}

func (r *countingUserRepository) FindByEmail(email string) (*domain.User, error) {
	r.findByEmailCalls++
	return r.UserRepository.FindByEmail(email)
}

type authFixture struct {
	auth     *AuthService
	sessions *SessionService
	users    *countingUserRepository
	now      *time.Time
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	db := newTestDB(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	users := &countingUserRepository{UserRepository: repository.NewUserRepository(db)}
	roles := repository.NewRoleRepository(db)
	sessions := NewSessionService(repository.NewSessionRepository(db), 30*time.Second).WithClock(clock)
	store := NewMemoryThrottleStore()
	store.clock = clock
	throttle := NewLoginThrottle(store, 3, 30*time.Second).WithClock(clock)

	return &authFixture{
		auth:     NewAuthService(users, roles, sessions, throttle),
		sessions: sessions,
		users:    users,
		now:      &now,
	}
}

const testPassword = "correct-h0rse!"

func (f *authFixture) signup(t *testing.T, email string) {
	t.Helper()
	_, err := f.auth.Signup(context.Background(), SignupInput{
		FullName:        "Ada Vendor",
		Email:           email,
		PhoneNumber:     "555-0101",
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
}

func TestSignupValidation(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   SignupInput
		want error
	}{
		{
			name: "bad email",
			in:   SignupInput{Email: "not-an-email", Password: testPassword, ConfirmPassword: testPassword},
			want: ErrInvalidEmail,
		},
		{
			name: "weak password",
			in:   SignupInput{Email: "a@example.com", Password: "short1!", ConfirmPassword: "short1!"},
			want: ErrWeakPassword,
		},
		{
			name: "mismatched confirmation",
			in:   SignupInput{Email: "a@example.com", Password: testPassword, ConfirmPassword: testPassword + "x"},
			want: ErrPasswordMismatch,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.auth.Signup(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSignupAssignsUserRoleAndRejectsDuplicates(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	f.signup(t, "ada@example.com")

	roles, err := f.users.RolesForUser(1)
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	if len(roles) != 1 || roles[0] != "user" {
		t.Fatalf("expected the default user role, got %v", roles)
	}

	_, err = f.auth.Signup(ctx, SignupInput{
		FullName:        "Ada Again",
		Email:           "ada@example.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLoginSuccessMintsRotatedSession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signup(t, "ada@example.com")

	anon, err := f.sessions.Create(ctx, 0, nil)
	if err != nil {
		t.Fatalf("pre-auth session: %v", err)
	}

	result, err := f.auth.Login(ctx, "ada@example.com", testPassword, "1.2.3.4", anon.SessionID)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Session.SessionID == anon.SessionID {
		t.Fatal("login must rotate the presented session id")
	}
	if !result.Session.HasRole("user") {
		t.Fatalf("expected the user role on the session, got %v", result.Session.Roles)
	}
	if _, err := f.sessions.Validate(ctx, anon.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("pre-auth id must stop resolving, got %v", err)
	}
}

func TestLoginFailureMessagesAreUniform(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signup(t, "ada@example.com")

	_, unknownErr := f.auth.Login(ctx, "nobody@example.com", testPassword, "1.1.1.1", "")
	_, wrongErr := f.auth.Login(ctx, "ada@example.com", "Wr0ng-password!", "2.2.2.2", "")

	var unknown, wrong *InvalidCredentialsError
	if !errors.As(unknownErr, &unknown) || !errors.As(wrongErr, &wrong) {
		t.Fatalf("expected InvalidCredentialsError for both paths, got %v / %v", unknownErr, wrongErr)
	}
	if unknown.Error() != wrong.Error() {
		t.Fatalf("failure messages must not distinguish the paths: %q vs %q", unknown.Error(), wrong.Error())
	}
}

func TestLoginEndToEndThrottleScenario(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signup(t, "ada@example.com")

	// Two wrong passwords count down the remaining attempts.
	for i, want := range []int{2, 1} {
		_, err := f.auth.Login(ctx, "ada@example.com", "Wr0ng-password!", "1.2.3.4", "")
		var invalid *InvalidCredentialsError
		if !errors.As(err, &invalid) {
			t.Fatalf("attempt %d: expected InvalidCredentialsError, got %v", i+1, err)
		}
		if invalid.Remaining != want {
			t.Fatalf("attempt %d: expected %d remaining, got %d", i+1, want, invalid.Remaining)
		}
	}

	// The third failure locks the address.
	_, err := f.auth.Login(ctx, "ada@example.com", "Wr0ng-password!", "1.2.3.4", "")
	var throttled *ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected ThrottledError on the third failure, got %v", err)
	}
	if throttled.RetryAfter != 30*time.Second {
		t.Fatalf("expected 30s retry-after, got %v", throttled.RetryAfter)
	}

	// While locked, even correct credentials are refused and the user
	// store is never consulted.
	lookupsBefore := f.users.findByEmailCalls
	_, err = f.auth.Login(ctx, "ada@example.com", testPassword, "1.2.3.4", "")
	if !errors.As(err, &throttled) {
		t.Fatalf("expected ThrottledError with correct credentials while locked, got %v", err)
	}
	if f.users.findByEmailCalls != lookupsBefore {
		t.Fatal("a locked attempt must not reach the credential check")
	}

	// A different address is unaffected.
	if _, err := f.auth.Login(ctx, "ada@example.com", testPassword, "5.6.7.8", ""); err != nil {
		t.Fatalf("login from unlocked address: %v", err)
	}

	// After the window elapses the locked address can log in again.
	*f.now = f.now.Add(31 * time.Second)
	result, err := f.auth.Login(ctx, "ada@example.com", testPassword, "1.2.3.4", "")
	if err != nil {
		t.Fatalf("login after lock expiry: %v", err)
	}
	if result.Session.SessionID == "" {
		t.Fatal("expected a fresh session after lock expiry")
	}
}

func TestLoginSuccessResetsThrottle(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signup(t, "ada@example.com")

	for i := 0; i < 2; i++ {
		_, _ = f.auth.Login(ctx, "ada@example.com", "Wr0ng-password!", "1.2.3.4", "")
	}
	if _, err := f.auth.Login(ctx, "ada@example.com", testPassword, "1.2.3.4", ""); err != nil {
		t.Fatalf("login: %v", err)
	}

	// The counter starts over after the successful login.
	_, err := f.auth.Login(ctx, "ada@example.com", "Wr0ng-password!", "1.2.3.4", "")
	var invalid *InvalidCredentialsError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidCredentialsError, got %v", err)
	}
	if invalid.Remaining != 2 {
		t.Fatalf("expected a reset counter, got %d remaining", invalid.Remaining)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signup(t, "ada@example.com")

	result, err := f.auth.Login(ctx, "ada@example.com", testPassword, "1.2.3.4", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := f.auth.Logout(ctx, result.Session.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := f.auth.Logout(ctx, result.Session.SessionID); err != nil {
		t.Fatalf("repeated logout must succeed: %v", err)
	}
	if _, err := f.sessions.Validate(ctx, result.Session.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("session must be gone after logout, got %v", err)
	}
}
