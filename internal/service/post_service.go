package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/tradepost/tradepost/internal/domain"
	"github.com/tradepost/tradepost/internal/repository"
)

var (
	ErrPostNotFound  = errors.New("post not found")
	ErrNotPostOwner  = errors.New("not the post owner")
	ErrBadPostStatus = errors.New("invalid post status")
)

// PostService is plain CRUD guarded upstream by the session and CSRF
// middleware; the only rule it enforces itself is ownership.
type PostService struct {
	posts repository.PostRepository
}

func NewPostService(posts repository.PostRepository) *PostService {
	return &PostService{posts: posts}
}

type PostInput struct {
	Title       string
	Description string
	PriceCents  int64
	Image       string
}

func (s *PostService) Create(_ context.Context, userID uint, in PostInput) (*domain.Post, error) {
	post := &domain.Post{
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
		PriceCents:  in.PriceCents,
		Image:       in.Image,
		Status:      domain.PostStatusActive,
	}
	if err := s.posts.Create(post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

func (s *PostService) Update(_ context.Context, userID, postID uint, in PostInput) (*domain.Post, error) {
	post, err := s.ownedPost(userID, postID)
	if err != nil {
		return nil, err
	}
	post.Title = in.Title
	post.Description = in.Description
	post.PriceCents = in.PriceCents
	if in.Image != "" {
		post.Image = in.Image
	}
	if err := s.posts.Update(post); err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}
	return post, nil
}

func (s *PostService) Delete(_ context.Context, userID, postID uint) error {
	if _, err := s.ownedPost(userID, postID); err != nil {
		return err
	}
	return s.posts.DeleteByID(postID)
}

// ModerateStatus is the admin takedown path: no ownership check.
func (s *PostService) ModerateStatus(_ context.Context, postID uint, status string) error {
	if !domain.ValidPostStatus(status) {
		return ErrBadPostStatus
	}
	err := s.posts.UpdateStatus(postID, status)
	if errors.Is(err, repository.ErrPostNotFound) {
		return ErrPostNotFound
	}
	return err
}

// ModerateDelete removes any user's post. Admin only, enforced upstream.
func (s *PostService) ModerateDelete(_ context.Context, postID uint) error {
	err := s.posts.DeleteByID(postID)
	if errors.Is(err, repository.ErrPostNotFound) {
		return ErrPostNotFound
	}
	return err
}

func (s *PostService) List(_ context.Context, req repository.PageRequest, status string) (repository.PageResult[domain.Post], error) {
	return s.posts.ListPaged(req, status)
}

func (s *PostService) ListMine(_ context.Context, userID uint) ([]domain.Post, error) {
	return s.posts.ListByUser(userID)
}

func (s *PostService) ownedPost(userID, postID uint) (*domain.Post, error) {
	post, err := s.posts.FindByID(postID)
	if errors.Is(err, repository.ErrPostNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		return nil, ErrNotPostOwner
	}
	return post, nil
}
