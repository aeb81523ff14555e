package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/dockhive/dockhive/internal/apperror"
	"github.com/dockhive/dockhive/internal/service"
)

// validate is shared by all handlers; the validator caches struct metadata
// and is safe for concurrent use.
var validate = validator.New()

// AuthHandler exposes signup, verification and login.
type AuthHandler struct {
	auth     *service.AuthService
	loginURL string
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. loginURL is where a successful
// verification redirects the browser.
func NewAuthHandler(auth *service.AuthService, loginURL string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, loginURL: loginURL, logger: logger}
}

type signupRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// HandleSignup registers a new account.
//
// HTTP: POST /api/signup, body {"username","email","password"}.
// Responds 202: the account exists but is unusable until verified.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.auth.Signup(r.Context(), req.Username, req.Email, req.Password); err != nil {
		h.logger.Warn("signup rejected", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "check your email for a verification link",
	})
}

// HandleVerify redeems an emailed verification code.
//
// HTTP: GET /api/verify?code=<base64>
// On success the browser is redirected to the login page.
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")

	if err := h.auth.Verify(r.Context(), code); err != nil {
		writeError(w, err)
		return
	}

	http.Redirect(w, r, h.loginURL, http.StatusTemporaryRedirect)
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" validate:"required"`
}

// HandleLogin authenticates and returns a bearer token.
//
// HTTP: POST /api/login, body {"username"|"email","password"}.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	identifier := req.Email
	if identifier == "" {
		identifier = req.Username
	}

	// r.RemoteAddr has been rewritten by the RealIP middleware.
	result, err := h.auth.Login(r.Context(), identifier, req.Password, r.RemoteAddr)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":    result.Token,
		"username": result.User.Username,
	})
}

// decodeBody parses a JSON request body into dst and runs struct validation.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("", "request body must be valid JSON")
	}

	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return apperror.ValidationFailed(fe.Field(), "invalid or missing field: "+fe.Field())
		}
		return apperror.ValidationFailed("", "invalid request body")
	}

	return nil
}
