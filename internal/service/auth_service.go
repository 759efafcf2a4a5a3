package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tradepost/tradepost/internal/domain"
	"github.com/tradepost/tradepost/internal/observability"
	"github.com/tradepost/tradepost/internal/repository"
	"github.com/tradepost/tradepost/internal/security"
)

var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrWeakPassword     = errors.New("password does not meet the policy")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrEmailTaken       = errors.New("email already registered")
)

// InvalidCredentialsError is returned for unknown email and wrong password
// alike; Remaining tells the client how many attempts are left before the
// address locks.
type InvalidCredentialsError struct {
	Remaining int
}

func (e *InvalidCredentialsError) Error() string { return "invalid email or password" }

// ThrottledError is returned when the client address is locked out.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string { return "too many login attempts" }

// dummyDigest is a bcrypt hash of an unguessable throwaway value. Login
// verifies against it when the email is unknown so both failure paths cost a
// full bcrypt comparison.
const dummyDigest = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// AuthService owns the login pipeline. The order is fixed: input validation,
// throttle admission, credential check, throttle bookkeeping, session
// rotation. Handlers never re-implement any stage.
type AuthService struct {
	users    repository.UserRepository
	roles    repository.RoleRepository
	sessions *SessionService
	throttle *LoginThrottle
}

func NewAuthService(users repository.UserRepository, roles repository.RoleRepository, sessions *SessionService, throttle *LoginThrottle) *AuthService {
	return &AuthService{users: users, roles: roles, sessions: sessions, throttle: throttle}
}

type SignupInput struct {
	FullName        string
	Email           string
	PhoneNumber     string
	Password        string
	ConfirmPassword string
	ProfilePicture  string
}

// Signup validates and registers a new account with the "user" role.
// Validation runs before any store is touched.
func (a *AuthService) Signup(ctx context.Context, in SignupInput) (*domain.User, error) {
	if !security.ValidEmail(in.Email) {
		return nil, ErrInvalidEmail
	}
	if !security.ValidPassword(in.Password) {
		return nil, ErrWeakPassword
	}
	if in.Password != in.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}

	digest, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		FullName:       in.FullName,
		Email:          in.Email,
		PhoneNumber:    in.PhoneNumber,
		PasswordHash:   digest,
		ProfilePicture: in.ProfilePicture,
	}
	if err := a.users.Create(user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	role, err := a.roles.FindByName(domain.RoleUser)
	if err != nil {
		return nil, fmt.Errorf("resolve default role: %w", err)
	}
	if err := a.users.AddRole(user.ID, role.ID); err != nil {
		return nil, fmt.Errorf("assign default role: %w", err)
	}
	return user, nil
}

type LoginResult struct {
	Session *domain.Session
	User    *domain.User
}

// Login runs the enforced authentication pipeline for one attempt from addr.
// presentedSessionID is whatever session cookie the client already held; it
// is rotated away on success.
func (a *AuthService) Login(ctx context.Context, email, password, addr, presentedSessionID string) (*LoginResult, error) {
	decision, err := a.throttle.Check(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("throttle check: %w", err)
	}
	if !decision.Allowed {
		// Locked addresses never reach the credential check, so a locked
		// attacker learns nothing about credential validity and burns no
		// bcrypt work.
		observability.RecordLogin(ctx, "throttled")
		return nil, &ThrottledError{RetryAfter: decision.RetryAfter}
	}

	user, err := a.users.FindByEmail(email)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	var verified bool
	if user != nil {
		verified = security.VerifyPassword(password, user.PasswordHash)
	} else {
		// Burn the same hashing cost for unknown emails.
		security.VerifyPassword(password, dummyDigest)
	}
	if !verified {
		outcome, ferr := a.throttle.RecordFailure(ctx, addr)
		if ferr != nil {
			return nil, fmt.Errorf("record login failure: %w", ferr)
		}
		observability.RecordLogin(ctx, "invalid_credentials")
		if outcome.Locked {
			return nil, &ThrottledError{RetryAfter: outcome.RetryAfter}
		}
		return nil, &InvalidCredentialsError{Remaining: outcome.Remaining}
	}

	if err := a.throttle.RecordSuccess(ctx, addr); err != nil {
		return nil, fmt.Errorf("reset throttle: %w", err)
	}

	roles, err := a.users.RolesForUser(user.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve roles: %w", err)
	}

	session, err := a.sessions.Rotate(ctx, presentedSessionID, user.ID, roles)
	if err != nil {
		return nil, err
	}
	observability.RecordLogin(ctx, "success")
	return &LoginResult{Session: session, User: user}, nil
}

// Logout destroys the presented session. Always succeeds: logging out twice,
// or with a cookie whose session is already gone, is a no-op.
func (a *AuthService) Logout(ctx context.Context, sessionID string) error {
	return a.sessions.Destroy(ctx, sessionID)
}
