package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tradepost/tradepost/internal/http/response"
	"github.com/tradepost/tradepost/internal/observability"
	"github.com/tradepost/tradepost/internal/repository"
	"github.com/tradepost/tradepost/internal/service"
)

// AdminHandler is the moderation surface. Role enforcement happens in the
// router via RequireRole("admin").
type AdminHandler struct {
	users    repository.UserRepository
	posts    *service.PostService
	sessions *service.SessionService
}

func NewAdminHandler(users repository.UserRepository, posts *service.PostService, sessions *service.SessionService) *AdminHandler {
	return &AdminHandler{users: users, posts: posts, sessions: sessions}
}

type adminUserPayload struct {
	ID          uint   `json:"id"`
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	result, err := h.users.ListPaged(repository.PageRequest{
		Page:     queryInt(r, "page"),
		PageSize: queryInt(r, "page_size"),
	})
	if err != nil {
		response.Internal(w, r, err)
		return
	}
	items := make([]adminUserPayload, 0, len(result.Items))
	for _, u := range result.Items {
		items = append(items, adminUserPayload{
			ID:          u.ID,
			FullName:    u.FullName,
			Email:       u.Email,
			PhoneNumber: u.PhoneNumber,
		})
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"items":       items,
		"page":        result.Page,
		"page_size":   result.PageSize,
		"total":       result.Total,
		"total_pages": result.TotalPages,
	})
}

// ListPosts shows every status, unlike the public listing.
func (h *AdminHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	result, err := h.posts.List(r.Context(), repository.PageRequest{
		Page:     queryInt(r, "page"),
		PageSize: queryInt(r, "page_size"),
	}, r.URL.Query().Get("status"))
	if err != nil {
		response.Internal(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, pagedPostsPayload(result))
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *AdminHandler) SetPostStatus(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "malformed request body", nil)
		return
	}
	if ok := writePostError(w, r, h.posts.ModerateStatus(r.Context(), postID, req.Status)); !ok {
		return
	}
	observability.Audit(r, "post_moderated", "post_id", postID, "status", req.Status)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": req.Status})
}

func (h *AdminHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathID(w, r)
	if !ok {
		return
	}
	if ok := writePostError(w, r, h.posts.ModerateDelete(r.Context(), postID)); !ok {
		return
	}
	observability.Audit(r, "post_removed_by_admin", "post_id", postID)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

// RevokeUserSessions force-logs-out every session a user holds.
func (h *AdminHandler) RevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := h.users.FindByID(userID); err != nil {
		writeUserLookupError(w, r, err)
		return
	}
	n, err := h.sessions.DestroyAllForUser(r.Context(), userID)
	if err != nil {
		response.Internal(w, r, err)
		return
	}
	observability.Audit(r, "user_sessions_revoked", "user_id", userID, "count", n)
	response.JSON(w, r, http.StatusOK, map[string]int64{"revoked": n})
}

func writeUserLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, repository.ErrUserNotFound) {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "user not found", nil)
		return
	}
	response.Internal(w, r, err)
}
