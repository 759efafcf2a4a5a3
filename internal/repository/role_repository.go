package repository

import (
	"context"
	"errors"

	"github.com/tradepost/tradepost/internal/domain"
	"github.com/tradepost/tradepost/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrRoleNotFound = errors.New("role not found")

type RoleRepository interface {
	FindByName(name string) (*domain.Role, error)
	Seed(names ...string) error
}

type GormRoleRepository struct{ db *gorm.DB }

func NewRoleRepository(db *gorm.DB) RoleRepository { return &GormRoleRepository{db: db} }

func (r *GormRoleRepository) FindByName(name string) (*domain.Role, error) {
	var role domain.Role
	err := r.db.Where("name = ?", name).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "role", "find_by_name", "not_found")
			return nil, ErrRoleNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "role", "find_by_name", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "role", "find_by_name", "success")
	return &role, nil
}

// Seed inserts the named roles if absent. Safe to run on every startup.
func (r *GormRoleRepository) Seed(names ...string) error {
	for _, name := range names {
		role := domain.Role{Name: name}
		err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&role).Error
		if err != nil {
			observability.RecordRepositoryOperation(context.Background(), "role", "seed", "error")
			return err
		}
	}
	observability.RecordRepositoryOperation(context.Background(), "role", "seed", "success")
	return nil
}
