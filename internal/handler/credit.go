package handler

import (
	"log/slog"
	"net/http"

	"github.com/dockhive/dockhive/internal/auth"
	"github.com/dockhive/dockhive/internal/service"
)

// CreditHandler exposes balance lookup and the admin adjustment.
type CreditHandler struct {
	credits *service.CreditService
	logger  *slog.Logger
}

// NewCreditHandler creates a CreditHandler.
func NewCreditHandler(credits *service.CreditService, logger *slog.Logger) *CreditHandler {
	return &CreditHandler{credits: credits, logger: logger}
}

// HandleBalance returns the caller's credit balance.
//
// HTTP: GET /api/credits
func (h *CreditHandler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	balance, err := h.credits.Balance(r.Context(), username)
	if err != nil {
		h.logger.Error("getting balance", slog.String("username", username), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"credits": balance})
}

type setCreditsRequest struct {
	Username string `json:"username" validate:"required"`
	Credits  int64  `json:"credits"`
}

// HandleSetCredits sets a user's balance to an absolute value. Requires the
// admin flag; a valid non-admin token gets 403.
//
// HTTP: PUT /api/admin/credits
func (h *CreditHandler) HandleSetCredits(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	var req setCreditsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.credits.SetCredits(r.Context(), actor, req.Username, req.Credits); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"username": req.Username,
		"credits":  req.Credits,
	})
}
