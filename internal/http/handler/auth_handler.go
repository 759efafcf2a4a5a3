package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tradepost/tradepost/internal/http/middleware"
	"github.com/tradepost/tradepost/internal/http/response"
	"github.com/tradepost/tradepost/internal/observability"
	"github.com/tradepost/tradepost/internal/security"
	"github.com/tradepost/tradepost/internal/service"
	"github.com/tradepost/tradepost/internal/uploads"
)

// AuthHandler exposes the signup, login, logout and session-check routes.
// All auth policy lives in the service layer; the handler only translates
// between HTTP and the pipeline.
type AuthHandler struct {
	auth          *service.AuthService
	sessions      *service.SessionService
	uploads       *uploads.DiskStore
	secureCookies bool
}

func NewAuthHandler(auth *service.AuthService, sessions *service.SessionService, store *uploads.DiskStore, secureCookies bool) *AuthHandler {
	return &AuthHandler{auth: auth, sessions: sessions, uploads: store, secureCookies: secureCookies}
}

type signupRequest struct {
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	PhoneNumber     string `json:"phone_number"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type userPayload struct {
	ID             uint   `json:"id"`
	FullName       string `json:"full_name"`
	Email          string `json:"email"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	var picture string

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "malformed multipart body", nil)
			return
		}
		req = signupRequest{
			FullName:        r.FormValue("full_name"),
			Email:           r.FormValue("email"),
			PhoneNumber:     r.FormValue("phone_number"),
			Password:        r.FormValue("password"),
			ConfirmPassword: r.FormValue("confirm_password"),
		}
		if files := r.MultipartForm.File["pfp"]; len(files) > 0 {
			name, err := h.uploads.Save(files[0])
			if errors.Is(err, uploads.ErrUnsupportedType) || errors.Is(err, uploads.ErrTooLarge) {
				response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
				return
			}
			if err != nil {
				response.Internal(w, r, err)
				return
			}
			picture = name
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "malformed request body", nil)
		return
	}

	user, err := h.auth.Signup(r.Context(), service.SignupInput{
		FullName:        req.FullName,
		Email:           req.Email,
		PhoneNumber:     req.PhoneNumber,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		ProfilePicture:  picture,
	})
	switch {
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrPasswordMismatch):
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
		return
	case errors.Is(err, service.ErrEmailTaken):
		response.Error(w, r, http.StatusBadRequest, "EMAIL_TAKEN", "email already registered", nil)
		return
	case err != nil:
		response.Internal(w, r, err)
		return
	}

	observability.Audit(r, "user_signed_up", "user_id", user.ID)
	response.JSON(w, r, http.StatusCreated, userPayload{
		ID:             user.ID,
		FullName:       user.FullName,
		Email:          user.Email,
		ProfilePicture: user.ProfilePicture,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User      userPayload `json:"user"`
	Roles     []string    `json:"roles"`
	CSRFToken string      `json:"csrf_token"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "malformed request body", nil)
		return
	}
	if req.Email == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "email and password are required", nil)
		return
	}

	addr := middleware.ClientIP(r)
	presented := security.GetCookie(r, security.SessionCookieName)

	result, err := h.auth.Login(r.Context(), req.Email, req.Password, addr, presented)
	var throttled *service.ThrottledError
	var invalid *service.InvalidCredentialsError
	switch {
	case errors.As(err, &throttled):
		retry := int(throttled.RetryAfter.Seconds())
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retry))
		observability.SecurityEvent(r, "login_throttled", "retry_after_seconds", retry)
		response.Error(w, r, http.StatusTooManyRequests, "THROTTLED",
			"too many login attempts, try again later",
			map[string]int{"retry_after_seconds": retry})
		return
	case errors.As(err, &invalid):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS",
			"invalid email or password",
			map[string]int{"remaining_attempts": invalid.Remaining})
		return
	case err != nil:
		response.Internal(w, r, err)
		return
	}

	security.SetSessionCookie(w, result.Session.SessionID, h.secureCookies)
	security.SetCSRFCookie(w, result.Session.CSRFToken, h.secureCookies)
	observability.Audit(r, "user_logged_in", "user_id", result.User.ID)
	response.JSON(w, r, http.StatusOK, loginResponse{
		User: userPayload{
			ID:             result.User.ID,
			FullName:       result.User.FullName,
			Email:          result.User.Email,
			ProfilePicture: result.User.ProfilePicture,
		},
		Roles:     result.Session.Roles,
		CSRFToken: result.Session.CSRFToken,
	})
}

// Logout destroys whatever session the cookie names and always answers 200,
// so repeated logouts and logouts with dead cookies behave the same.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := security.GetCookie(r, security.SessionCookieName)
	if err := h.auth.Logout(r.Context(), sessionID); err != nil {
		response.Internal(w, r, err)
		return
	}
	security.ClearSessionCookies(w)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

type sessionPayload struct {
	UserID uint     `json:"user_id"`
	Roles  []string `json:"roles"`
}

// CheckSession reports the authenticated identity. SessionMiddleware has
// already validated and refreshed the session.
func (h *AuthHandler) CheckSession(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	roles := session.Roles
	if roles == nil {
		roles = []string{}
	}
	response.JSON(w, r, http.StatusOK, sessionPayload{UserID: session.UserID, Roles: roles})
}
