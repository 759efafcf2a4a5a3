package repository

import (
	"errors"
	"testing"

	"github.com/tradepost/tradepost/internal/domain"
)

func TestUserRepositoryCreateFindAndDuplicateEmail(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))

	u := &domain.User{FullName: "Ada B", Email: "a@b.com", PasswordHash: "x"}
	if err := repo.Create(u); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.FindByEmail("a@b.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("expected id %d, got %d", u.ID, got.ID)
	}

	dup := &domain.User{FullName: "Imposter", Email: "a@b.com", PasswordHash: "y"}
	if err := repo.Create(dup); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	if _, err := repo.FindByEmail("nobody@b.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserRepositoryRolesForUser(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	roles := NewRoleRepository(db)

	u := &domain.User{FullName: "Role Holder", Email: "r@b.com", PasswordHash: "x"}
	if err := users.Create(u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	userRole, err := roles.FindByName(domain.RoleUser)
	if err != nil {
		t.Fatalf("find role: %v", err)
	}
	if err := users.AddRole(u.ID, userRole.ID); err != nil {
		t.Fatalf("add role: %v", err)
	}

	names, err := users.RolesForUser(u.ID)
	if err != nil {
		t.Fatalf("roles for user: %v", err)
	}
	if len(names) != 1 || names[0] != domain.RoleUser {
		t.Fatalf("unexpected roles %v", names)
	}
}
