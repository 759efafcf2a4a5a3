package repository

import (
	"context"
	"errors"

	"github.com/tradepost/tradepost/internal/domain"
	"github.com/tradepost/tradepost/internal/observability"

	"gorm.io/gorm"
)

var ErrPostNotFound = errors.New("post not found")

type PostRepository interface {
	Create(p *domain.Post) error
	FindByID(id uint) (*domain.Post, error)
	Update(p *domain.Post) error
	UpdateStatus(id uint, status string) error
	DeleteByID(id uint) error
	ListPaged(req PageRequest, status string) (PageResult[domain.Post], error)
	ListByUser(userID uint) ([]domain.Post, error)
	CountAll() (int64, error)
}

type GormPostRepository struct{ db *gorm.DB }

func NewPostRepository(db *gorm.DB) PostRepository { return &GormPostRepository{db: db} }

func (r *GormPostRepository) Create(p *domain.Post) error {
	err := r.db.Create(p).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "post", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "post", "create", "success")
	return nil
}

func (r *GormPostRepository) FindByID(id uint) (*domain.Post, error) {
	var p domain.Post
	err := r.db.First(&p, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "post", "find_by_id", "not_found")
			return nil, ErrPostNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "post", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "post", "find_by_id", "success")
	return &p, nil
}

func (r *GormPostRepository) Update(p *domain.Post) error {
	err := r.db.Save(p).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "post", "update", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "post", "update", "success")
	return nil
}

func (r *GormPostRepository) UpdateStatus(id uint, status string) error {
	res := r.db.Model(&domain.Post{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "post", "update_status", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "post", "update_status", "not_found")
		return ErrPostNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "post", "update_status", "success")
	return nil
}

func (r *GormPostRepository) DeleteByID(id uint) error {
	res := r.db.Delete(&domain.Post{}, id)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "post", "delete_by_id", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "post", "delete_by_id", "not_found")
		return ErrPostNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "post", "delete_by_id", "success")
	return nil
}

func (r *GormPostRepository) ListPaged(req PageRequest, status string) (PageResult[domain.Post], error) {
	req = normalizePageRequest(req)
	result := PageResult[domain.Post]{Page: req.Page, PageSize: req.PageSize}

	base := r.db.Model(&domain.Post{})
	if status != "" {
		base = base.Where("status = ?", status)
	}
	if err := base.Count(&result.Total).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "post", "list_paged", "error")
		return PageResult[domain.Post]{}, err
	}
	offset := (req.Page - 1) * req.PageSize
	if err := base.Order("created_at DESC").Order("id DESC").Offset(offset).Limit(req.PageSize).Find(&result.Items).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "post", "list_paged", "error")
		return PageResult[domain.Post]{}, err
	}
	result.TotalPages = calcTotalPages(result.Total, req.PageSize)
	observability.RecordRepositoryOperation(context.Background(), "post", "list_paged", "success")
	return result, nil
}

func (r *GormPostRepository) ListByUser(userID uint) ([]domain.Post, error) {
	var posts []domain.Post
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&posts).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "post", "list_by_user", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "post", "list_by_user", "success")
	return posts, nil
}

func (r *GormPostRepository) CountAll() (int64, error) {
	var n int64
	if err := r.db.Model(&domain.Post{}).Count(&n).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "post", "count_all", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(context.Background(), "post", "count_all", "success")
	return n, nil
}
