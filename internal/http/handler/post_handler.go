package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tradepost/tradepost/internal/domain"
	"github.com/tradepost/tradepost/internal/http/middleware"
	"github.com/tradepost/tradepost/internal/http/response"
	"github.com/tradepost/tradepost/internal/repository"
	"github.com/tradepost/tradepost/internal/service"
	"github.com/tradepost/tradepost/internal/uploads"
)

type PostHandler struct {
	posts   *service.PostService
	uploads *uploads.DiskStore
}

func NewPostHandler(posts *service.PostService, store *uploads.DiskStore) *PostHandler {
	return &PostHandler{posts: posts, uploads: store}
}

type postRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
}

type postPayload struct {
	ID          uint   `json:"id"`
	UserID      uint   `json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Image       string `json:"image,omitempty"`
	Status      string `json:"status"`
}

func postToPayload(p *domain.Post) postPayload {
	return postPayload{
		ID:          p.ID,
		UserID:      p.UserID,
		Title:       p.Title,
		Description: p.Description,
		PriceCents:  p.PriceCents,
		Image:       p.Image,
		Status:      p.Status,
	}
}

// List is the public marketplace listing: active posts only, paginated.
func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	req := repository.PageRequest{
		Page:     queryInt(r, "page"),
		PageSize: queryInt(r, "page_size"),
	}
	result, err := h.posts.List(r.Context(), req, domain.PostStatusActive)
	if err != nil {
		response.Internal(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, pagedPostsPayload(result))
}

func (h *PostHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.SessionFromContext(r.Context())
	posts, err := h.posts.ListMine(r.Context(), session.UserID)
	if err != nil {
		response.Internal(w, r, err)
		return
	}
	items := make([]postPayload, 0, len(posts))
	for i := range posts {
		items = append(items, postToPayload(&posts[i]))
	}
	response.JSON(w, r, http.StatusOK, items)
}

func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.SessionFromContext(r.Context())

	req, image, ok := h.parsePostBody(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "title is required", nil)
		return
	}
	if req.PriceCents < 0 {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "price must not be negative", nil)
		return
	}

	post, err := h.posts.Create(r.Context(), session.UserID, service.PostInput{
		Title:       req.Title,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Image:       image,
	})
	if err != nil {
		response.Internal(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, postToPayload(post))
}

func (h *PostHandler) Update(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.SessionFromContext(r.Context())
	postID, ok := pathID(w, r)
	if !ok {
		return
	}
	req, image, ok := h.parsePostBody(w, r)
	if !ok {
		return
	}

	post, err := h.posts.Update(r.Context(), session.UserID, postID, service.PostInput{
		Title:       req.Title,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Image:       image,
	})
	if ok := writePostError(w, r, err); !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, postToPayload(post))
}

func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.SessionFromContext(r.Context())
	postID, ok := pathID(w, r)
	if !ok {
		return
	}
	if ok := writePostError(w, r, h.posts.Delete(r.Context(), session.UserID, postID)); !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

// parsePostBody accepts JSON or multipart (with an optional image part).
// Reports false after writing the error response.
func (h *PostHandler) parsePostBody(w http.ResponseWriter, r *http.Request) (postRequest, string, bool) {
	var req postRequest
	var image string

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "malformed multipart body", nil)
			return req, "", false
		}
		req.Title = r.FormValue("title")
		req.Description = r.FormValue("description")
		if raw := r.FormValue("price_cents"); raw != "" {
			cents, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "price_cents must be an integer", nil)
				return req, "", false
			}
			req.PriceCents = cents
		}
		if files := r.MultipartForm.File["image"]; len(files) > 0 {
			name, err := h.uploads.Save(files[0])
			if errors.Is(err, uploads.ErrUnsupportedType) || errors.Is(err, uploads.ErrTooLarge) {
				response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
				return req, "", false
			}
			if err != nil {
				response.Internal(w, r, err)
				return req, "", false
			}
			image = name
		}
		return req, image, true
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "malformed request body", nil)
		return req, "", false
	}
	return req, "", true
}

func pagedPostsPayload(result repository.PageResult[domain.Post]) map[string]any {
	items := make([]postPayload, 0, len(result.Items))
	for i := range result.Items {
		items = append(items, postToPayload(&result.Items[i]))
	}
	return map[string]any{
		"items":       items,
		"page":        result.Page,
		"page_size":   result.PageSize,
		"total":       result.Total,
		"total_pages": result.TotalPages,
	}
}

// writePostError maps service errors onto the envelope. Reports true when
// err was nil and the caller should write its own success response.
func writePostError(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, service.ErrPostNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "post not found", nil)
	case errors.Is(err, service.ErrNotPostOwner):
		response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "not the post owner", nil)
	case errors.Is(err, service.ErrBadPostStatus):
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "invalid post status", nil)
	default:
		response.Internal(w, r, err)
	}
	return false
}

func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "invalid id", nil)
		return 0, false
	}
	return uint(id), true
}

func queryInt(r *http.Request, name string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(name))
	return v
}
